//go:build unix

package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/larsen-farm/plugintools/internal/env"
)

func TestSend_PipeCancelReleasesReader(t *testing.T) {
	dir := t.TempDir()
	req := filepath.Join(dir, "request")
	resp := filepath.Join(dir, "response")
	if err := os.WriteFile(req, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Mkfifo(resp, 0600); err != nil {
		t.Skipf("mkfifo: %v", err)
	}
	c, _ := newTestClient(t, env.Map{
		env.RequestPipe:  req,
		env.ResponsePipe: resp,
		env.OSVersion:    "8.1.0",
	})
	cmd, _ := c.Commands().Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Send(ctx, cmd, ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send error = %v, want deadline exceeded", err)
	}

	// A reader still parked on the FIFO would let a non-blocking writer in.
	deadline := time.Now().Add(2 * time.Second)
	for {
		f, err := os.OpenFile(resp, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err != nil {
			return
		}
		f.Close()
		if time.Now().After(deadline) {
			t.Fatal("response pipe reader still open after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

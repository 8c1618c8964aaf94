package device

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/larsen-farm/plugintools/internal/env"
	"github.com/larsen-farm/plugintools/pkg/celery"
)

func pipeEnv(t *testing.T, ack string) (env.Map, string) {
	t.Helper()
	dir := t.TempDir()
	req := filepath.Join(dir, "request")
	resp := filepath.Join(dir, "response")
	if err := os.WriteFile(req, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(resp, []byte(ack+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return env.Map{
		env.RequestPipe:  req,
		env.ResponsePipe: resp,
		env.OSVersion:    "8.1.0",
	}, req
}

func TestSend_Pipe(t *testing.T) {
	vars, req := pipeEnv(t, `{"kind":"rpc_ok","args":{"label":"p1"}}`)
	c, out := newTestClient(t, vars)
	cmd, _ := c.Commands().TakePhoto()

	if _, err := c.Send(context.Background(), cmd, "p1"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	data, err := os.ReadFile(req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") || strings.Count(string(data), "\n") != 1 {
		t.Errorf("request pipe = %q, want one line", data)
	}
	var sent celery.Command
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("decode request line: %v", err)
	}
	if sent.Kind != celery.KindRPCRequest || sent.Args["label"] != "p1" {
		t.Errorf("sent %v, want rpc_request labelled p1", sent)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected console output %q", out.String())
	}
}

func TestSend_PipeRPCError(t *testing.T) {
	vars, _ := pipeEnv(t, `{"kind":"rpc_error","args":{"label":"p2"},"body":[{"kind":"explanation","args":{"message":"motor stalled"}}]}`)
	c, _ := newTestClient(t, vars)
	cmd, _ := c.Commands().Home("all")

	_, err := c.Send(context.Background(), cmd, "p2")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *RPCError", err)
	}
	if rpcErr.Label != "p2" || rpcErr.Message != "motor stalled" {
		t.Errorf("RPCError = %+v", rpcErr)
	}
	if !IsFatal(err) {
		t.Error("rpc_error should be fatal")
	}
}

func TestSend_PipeIgnoredOnOldDevice(t *testing.T) {
	vars, req := pipeEnv(t, `{"kind":"rpc_ok","args":{}}`)
	vars[env.OSVersion] = "7.5.0"
	c, out := newTestClient(t, vars)
	cmd, _ := c.Commands().Sync()

	if _, err := c.Send(context.Background(), cmd, ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if data, _ := os.ReadFile(req); len(data) != 0 {
		t.Errorf("request pipe written on 7.5.0: %q", data)
	}
	if !strings.Contains(out.String(), "sync") {
		t.Errorf("expected print fallback, got %q", out.String())
	}
}

package device

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/larsen-farm/plugintools/internal/env"
	"github.com/larsen-farm/plugintools/pkg/celery"
)

const kindRPCError = "rpc_error"

// releaseAttempts bounds how long a cancelled send keeps nudging its reader.
const releaseAttempts = 200

// sendPipe writes cmd as one JSON line to the request pipe and waits for one
// acknowledgement line on the response pipe. An rpc_error reply becomes an
// *RPCError carrying the first explanation message.
func (c *Client) sendPipe(ctx context.Context, pipes env.PipeTransport, cmd celery.Command) error {
	line, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if err := writeLine(pipes.Request, line); err != nil {
		return err
	}

	type reply struct {
		ack celery.Command
		err error
	}
	done := make(chan reply, 1)
	go func() {
		ack, err := readAck(pipes.Response)
		done <- reply{ack, err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		go func() {
			for i := 0; i < releaseAttempts; i++ {
				releaseReader(pipes.Response)
				select {
				case <-done:
					return
				case <-time.After(10 * time.Millisecond):
				}
			}
		}()
		return ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return r.err
	}

	c.logger.Debug().Str("kind", r.ack.Kind).Msg("pipe acknowledgement")
	if r.ack.Kind != kindRPCError {
		return nil
	}
	label, _ := r.ack.Args["label"].(string)
	rpcErr := &RPCError{Label: label}
	for _, child := range r.ack.Body {
		if msg, ok := child.Args["message"].(string); ok {
			rpcErr.Message = msg
			break
		}
	}
	return rpcErr
}

func writeLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open request pipe: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write request pipe: %w", err)
	}
	return nil
}

// releaseReader unblocks a reader parked in open(2) on the response FIFO by
// briefly connecting a writer; the reader then sees EOF. It fails with ENXIO
// when no reader is waiting, which is fine.
func releaseReader(path string) {
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return
	}
	f.Close()
}

func readAck(path string) (celery.Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return celery.Command{}, fmt.Errorf("open response pipe: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return celery.Command{}, fmt.Errorf("read response pipe: %w", err)
	}
	var ack celery.Command
	if err := json.Unmarshal(line, &ack); err != nil {
		return celery.Command{}, fmt.Errorf("decode acknowledgement: %w", err)
	}
	return ack, nil
}

// Package stream implements the line-delimited byte-stream transport:
// newline-terminated JSON-RPC envelopes in, newline-terminated envelopes
// out, with end-of-stream triggering server stop.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/judgehost/judgehost/internal/jsonrpc"
	"github.com/judgehost/judgehost/internal/telemetry"
)

// Transport reads newline-delimited JSON-RPC envelopes from r and writes
// responses, also newline-terminated, to w.
type Transport struct {
	reader  io.Reader
	writer  io.Writer
	handler *jsonrpc.Handler
	onEOF   func()
	logger  telemetry.Logger

	writeMu sync.Mutex
}

// New constructs a stream Transport. onEOF, if non-nil, is invoked once the
// input stream is exhausted.
func New(r io.Reader, w io.Writer, handler *jsonrpc.Handler, onEOF func(), logger telemetry.Logger) *Transport {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Transport{reader: r, writer: w, handler: handler, onEOF: onEOF, logger: logger}
}

// Run reads lines until end-of-stream, forwarding each non-blank line to
// the JSON-RPC handler and writing back any response it produces. It
// returns when the stream ends or a non-EOF read error occurs.
func (t *Transport) Run(ctx context.Context) error {
	reader := bufio.NewReader(t.reader)
	for {
		line, err := reader.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			t.handleLine(ctx, trimmed)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	if t.onEOF != nil {
		t.onEOF()
	}
	return nil
}

func (t *Transport) handleLine(ctx context.Context, line string) {
	resp := t.handler.HandleMessage(ctx, []byte(line))
	if resp == nil {
		return
	}
	t.write(ctx, resp)
}

// write serializes resp with a trailing newline, preserving write order
// per request via writeMu.
func (t *Transport) write(ctx context.Context, resp *jsonrpc.Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		t.logger.Error(ctx, "failed to marshal response", "error", err.Error())
		return
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(append(raw, '\n')); err != nil {
		t.logger.Error(ctx, "failed to write response", "error", err.Error())
	}
}

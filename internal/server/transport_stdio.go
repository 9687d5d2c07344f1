package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ravelhq/ravel/internal/diag"
)

// stdioRequest is one line of the line-delimited JSON wire framing:
// {"tool": "...", "payload": {...}}.
type stdioRequest struct {
	Tool    string          `json:"tool"`
	Payload json.RawMessage `json:"payload"`
}

// ServeStdio reads one JSON request per line from r and writes one
// JSON envelope per line to w, until r is exhausted or ctx is
// cancelled. This is the default transport (spec.md §6).
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req stdioRequest
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := enc.Encode(Fail(fmt.Errorf("malformed request line: %w", err))); encErr != nil {
				return encErr
			}
			continue
		}

		env := s.Dispatch(ctx, req.Tool, req.Payload)
		if err := enc.Encode(env); err != nil {
			return err
		}
		diag.Logf("stdio: served tool=%s success=%v", req.Tool, env.Success)
	}
	return scanner.Err()
}

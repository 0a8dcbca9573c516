// ABOUTME: Stdio transport: newline-delimited JSON-RPC over standard streams.
// ABOUTME: One implicit session per process; used when a client spawns the gateway.

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ServeStdio reads JSON-RPC requests line by line from in and writes
// responses to out until in closes or ctx is cancelled. The whole
// process acts as a single session, so no session IDs appear on the
// wire.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	sess := s.sessions.Open("stdio", nil, nil)
	defer s.sessions.Close(sess.ID)

	s.logger.Info("session created", "session_id", sess.ID, "transport", "stdio")

	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxRequestBodySize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			if err := enc.Encode(errorResponse(nil, JSONRPCParseError, "invalid JSON")); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
			continue
		}

		// Notifications get no reply on this transport either
		if len(req.ID) == 0 || string(req.ID) == "null" {
			continue
		}

		var resp JSONRPCResponse
		if req.Method == "initialize" {
			resp = result(req.ID, initializeResult())
		} else {
			resp = s.dispatch(ctx, req)
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	return scanner.Err()
}

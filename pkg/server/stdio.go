package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ServeStdio reads one JSON request per line from r and writes one JSON
// response per line to w. Malformed lines produce an error object, never
// a dropped response: callers pair responses to requests by line order.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			if err := enc.Encode(map[string]string{"error": "rate limit exceeded"}); err != nil {
				return fmt.Errorf("server: write response: %w", err)
			}
			continue
		}
		req, err := s.decodeRequest(json.RawMessage(line))
		if err != nil {
			if err := enc.Encode(map[string]string{"error": err.Error()}); err != nil {
				return fmt.Errorf("server: write response: %w", err)
			}
			continue
		}
		resp := s.engine.Load().RenderVerdict(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("server: write response: %w", err)
		}
	}
	return scanner.Err()
}

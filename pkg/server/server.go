// Package server exposes the judgment engine over HTTP and over a
// line-delimited JSON stdio loop for agent-host embedding.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/apexgov/core/pkg/apex"
	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/cooling"
	"github.com/apexgov/core/pkg/ledger"
)

// requestSchema validates inbound judgment requests before they reach
// the engine. Anything malformed is rejected at the edge.
const requestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["task"],
  "properties": {
    "task": {"type": "string", "minLength": 1},
    "params": {"type": "object"},
    "context": {"type": "object"}
  },
  "additionalProperties": false
}`

// Server wires the engine to transports. The engine pointer is atomic
// so a constitution reload can swap it under live traffic.
type Server struct {
	engine  atomic.Pointer[apex.Engine]
	cooling *cooling.Engine
	ledger  ledger.Store
	limiter *rate.Limiter
	logger  *slog.Logger
	schema  *jsonschema.Schema
}

// Option configures a Server.
type Option func(*Server)

// WithCooling attaches the cooling engine for the status endpoints.
func WithCooling(c *cooling.Engine) Option {
	return func(s *Server) { s.cooling = c }
}

// WithRateLimit bounds inbound requests per second with a burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a Server around an engine and its ledger.
func New(engine *apex.Engine, store ledger.Store, opts ...Option) (*Server, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := "https://apexgov.schemas.local/verdict-request.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(requestSchema)); err != nil {
		return nil, fmt.Errorf("server: schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("server: schema compile failed: %w", err)
	}
	s := &Server{
		ledger: store,
		logger: slog.Default(),
		schema: compiled,
	}
	s.engine.Store(engine)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetEngine swaps the live judgment engine, e.g. after a constitution
// reload. In-flight requests finish on the engine they started with.
func (s *Server) SetEngine(engine *apex.Engine) {
	s.engine.Store(engine)
}

// Handler returns the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/verdict", s.handleVerdict)
	mux.HandleFunc("/v1/ledger/verify", s.handleVerify)
	mux.HandleFunc("/v1/cooling", s.handleCooling)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleVerdict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := s.decodeRequest(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.engine.Load().RenderVerdict(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// decodeRequest validates raw JSON against the request schema and
// unmarshals it.
func (s *Server) decodeRequest(raw json.RawMessage) (*contracts.Request, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("request rejected: %w", err)
	}
	var req contracts.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	seq, head := s.ledger.Head()
	result := map[string]any{
		"intact":   true,
		"sequence": seq,
		"head":     head,
	}
	if err := s.ledger.VerifyChain(r.Context()); err != nil {
		result["intact"] = false
		result["error"] = err.Error()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(result)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleCooling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.cooling == nil {
		writeError(w, http.StatusNotFound, "cooling not enabled")
		return
	}
	session := r.URL.Query().Get("session_id")
	if session == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	entries := s.cooling.BySession(session)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id":   session,
		"all_complete": s.cooling.AllComplete(session),
		"entries":      entries,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

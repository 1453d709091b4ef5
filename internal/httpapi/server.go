// Package httpapi serves the token service over plain HTTP for local and
// self-hosted deployments.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sebastian-mora/sshtoken/internal/handler"
	"github.com/sebastian-mora/sshtoken/internal/logger"
)

const maxBodyBytes = 64 << 10

type Server struct {
	tokens   handler.TokenService
	keys     handler.Keyhandler
	gatherer prometheus.Gatherer
}

// NewServer wires the routes. /metrics is only mounted when gatherer is set.
func NewServer(tokens handler.TokenService, keys handler.Keyhandler, gatherer prometheus.Gatherer) *Server {
	return &Server{tokens: tokens, keys: keys, gatherer: gatherer}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(WithRecover, WithRequestID)

	r.Get("/token", s.issueToken)
	r.Post("/token/signing", s.validateToken)
	r.Get("/ca.pub", s.caPublicKey)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// GET /token
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	resp, err := s.tokens.IssueToken(r.Context(), &handler.TokenRequest{
		Token:     bearerToken(r),
		SourceIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /token/signing
func (s *Server) validateToken(w http.ResponseWriter, r *http.Request) {
	var req handler.ValidationRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || json.Unmarshal(body, &req) != nil {
		writeError(w, r, handler.ErrInvalidRequest)
		return
	}
	req.Token = bearerToken(r)

	resp, err := s.tokens.ValidateToken(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, resp.Code, resp)
}

// GET /ca.pub
func (s *Server) caPublicKey(w http.ResponseWriter, r *http.Request) {
	pub, err := s.keys.PublicKey(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, pub)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := handler.ErrorStatus(err)
	logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	http.Error(w, body, status)
}

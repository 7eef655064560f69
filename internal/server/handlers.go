package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/classify"
	"github.com/openveil/pii-gateway/internal/gateway"
	"github.com/openveil/pii-gateway/internal/sanitize"
	"github.com/openveil/pii-gateway/internal/usage"
)

const maxBodyBytes = 4 << 20 // 4 MiB

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Matches             []classify.Match `json:"matches"`
	MatchCount          int              `json:"matchCount"`
	DataTypes           []string         `json:"dataTypes"`
	ShowstopperDetected bool             `json:"showstopperDetected"`
}

type sanitizeRequest struct {
	Text string `json:"text"`
	// Mode is "detect" (classification only) or "redact" (full forward
	// transform). Defaults to "redact".
	Mode string `json:"mode,omitempty"`
}

type reverseRequest struct {
	RedactedText string             `json:"redactedText"`
	Mappings     []sanitize.Mapping `json:"mappings"`
}

type routeRequest struct {
	SystemPrompt string `json:"systemPrompt,omitempty"`
	UserMessage  string `json:"userMessage"`
	Context      struct {
		IsLocalProvider  bool   `json:"isLocalProvider,omitempty"`
		ExplicitProvider string `json:"explicitProvider,omitempty"`
	} `json:"context,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleClassify runs detection only and reports matches with their spans.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !s.decode(w, r, &req) {
		return
	}

	matches, err := s.gateway.Classify(req.Text)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}

	showstopper := false
	for _, m := range matches {
		if m.Severity == catalog.SeverityShowstopper {
			showstopper = true
			break
		}
	}

	s.writeJSON(w, http.StatusOK, classifyResponse{
		Matches:             matches,
		MatchCount:          len(matches),
		DataTypes:           classify.DataTypes(matches),
		ShowstopperDetected: showstopper,
	})
}

// handleSanitize classifies and, unless mode is "detect", applies the
// forward transform with a fresh request-scoped session.
func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	var req sanitizeRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Mode == "detect" {
		matches, err := s.gateway.Classify(req.Text)
		if err != nil {
			s.writeGatewayError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, classifyResponse{
			Matches:    matches,
			MatchCount: len(matches),
			DataTypes:  classify.DataTypes(matches),
		})
		return
	}

	result, err := s.gateway.SanitizeText(req.Text)
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleReverse restores original values for the supplied mappings. Absent
// placeholders are counted, never errored.
func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if !s.decode(w, r, &req) {
		return
	}

	result := sanitize.Reverse(req.RedactedText, req.Mappings)
	s.writeJSON(w, http.StatusOK, result)
}

// handleRoute runs the full pipeline. A blocked decision is a 200 with the
// refusal in the body; only provider failures surface as 502.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserMessage == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "userMessage is required"})
		return
	}

	result, err := s.gateway.Route(r.Context(), req.SystemPrompt, req.UserMessage, gateway.RouteContext{
		IsLocalProvider:  req.Context.IsLocalProvider,
		ExplicitProvider: req.Context.ExplicitProvider,
	})
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Route failed",
			zap.String("gateway_request_id", result.RequestID),
			zap.Error(err),
		)
		s.writeJSON(w, http.StatusBadGateway, result)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleStats reports usage counters when the recorder supports them.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	type statsSource interface {
		GetStats(ctx context.Context) (*usage.Stats, error)
	}

	src, ok := s.recorder.(statsSource)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "usage recording is disabled"})
		return
	}

	stats, err := src.GetStats(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read usage stats"})
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, ok := s.gateway.Snapshot()
	status := "healthy"
	code := http.StatusOK
	if !ok {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]string{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	patterns, dictSize := 0, 0
	loadedAt := time.Time{}
	if snap, ok := s.gateway.Snapshot(); ok {
		patterns = len(snap.Patterns)
		dictSize = len(snap.Dictionary)
		loadedAt = snap.LoadedAt
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":                  "pii-gateway",
		"version":               Version,
		"catalog_source":        s.config.Catalog.Source,
		"active_patterns":       patterns,
		"dictionary_entries":    dictSize,
		"catalog_loaded_at":     loadedAt,
		"trust_local_providers": s.config.Policy.TrustLocalProviders,
	})
}

// decode reads a JSON body with a size cap. A false return means the error
// response has already been written.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, gateway.ErrCatalogUnavailable) {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	s.logger.WithRequestID(getRequestID(r.Context())).Error("Request failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/logmask/internal/masking"
)

// maxBodyBytes bounds every request body, independently of the masker's
// per-message limit.
const maxBodyBytes = 8 << 20

type maskRequest struct {
	Message string `json:"message"`
}

type maskResponse struct {
	Masked   string            `json:"masked"`
	Findings []masking.Finding `json:"findings"`
	Error    string            `json:"error,omitempty"`
}

type batchRequest struct {
	Messages []string `json:"messages"`
}

type batchResponse struct {
	Results []maskResponse `json:"results"`
}

type reloadRequest struct {
	Options []string `json:"options"`
}

type reloadResponse struct {
	Rules  int      `json:"rules"`
	Errors []string `json:"errors"`
}

type ruleView struct {
	Expression string           `json:"expression"`
	Strategy   masking.Strategy `json:"strategy"`
	Param      string           `json:"param,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":              "logmask",
		"version":           version,
		"uptime":            time.Since(s.started).Round(time.Second).String(),
		"masking_enabled":   s.config.Masking.Enabled,
		"fail_mode":         s.config.Masking.FailMode,
		"max_message_bytes": s.config.Masking.MaxMessageBytes,
		"rules":             s.deps.Masker.Snapshot().Len(),
	}
	if s.deps.Hub != nil {
		info["websocket"] = s.deps.Hub.GetStats()
	}
	if s.deps.Notifier != nil {
		info["signals"] = s.deps.Notifier.Stats()
	}
	if s.limiter != nil {
		info["rate_limited_clients"] = s.limiter.Len()
	}

	writeJSON(w, http.StatusOK, info)
}

// handleMask masks one message
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	var req maskRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.mask(r, req.Message)
	if err != nil && s.failMode() == masking.FailClosed {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, masking.ErrMessageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleMaskBatch masks each message independently. A failed message is
// reported in its own result and does not fail the batch.
func (s *Server) handleMaskBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.Messages) > s.config.Server.MaxBatchSize {
		writeError(w, http.StatusBadRequest, "too many messages in batch")
		return
	}

	results := make([]maskResponse, len(req.Messages))
	for i, message := range req.Messages {
		results[i], _ = s.mask(r, message)
	}

	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// mask renders one message. On failure the response holds the fail-mode
// fallback text and the error.
func (s *Server) mask(r *http.Request, message string) (maskResponse, error) {
	if !s.config.Masking.Enabled {
		return maskResponse{Masked: message, Findings: []masking.Finding{}}, nil
	}

	result, err := s.deps.Masker.RenderDetailed(message)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Warn("Masking failed", zap.Error(err))
		return maskResponse{
			Masked:   s.failMode().Fallback(message),
			Findings: []masking.Finding{},
			Error:    err.Error(),
		}, err
	}

	if s.deps.Hits != nil && len(result.Findings) > 0 {
		if err := s.deps.Hits.RecordFindings(r.Context(), result.Findings); err != nil {
			s.logger.Debug("Failed to record findings", zap.Error(err))
		}
	}

	return maskResponse{Masked: result.Text, Findings: result.Findings}, nil
}

// handleRules lists the active set in evaluation order
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	bindings := s.deps.Masker.Snapshot().Bindings()
	rules := make([]ruleView, len(bindings))
	for i, b := range bindings {
		rules[i] = ruleView{Expression: b.Source(), Strategy: b.Strategy(), Param: b.Param()}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// handleReload replaces the active set. Rejected options are reported but
// the rest of the set is still published.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.deps.Masker.Reload(req.Options)
	resp := reloadResponse{
		Rules:  s.deps.Masker.Snapshot().Len(),
		Errors: errorStrings(err),
	}

	s.logger.WithRequestID(getRequestID(r.Context())).Info("Masking rules reloaded",
		zap.String("source", "api"),
		zap.Int("rules", resp.Rules),
		zap.Int("errors", len(resp.Errors)),
	)
	if s.deps.Hub != nil {
		s.deps.Hub.RulesReloaded("api", resp.Rules, len(resp.Errors))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStats returns the shared rule-hit counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Counters == nil {
		writeError(w, http.StatusNotFound, "counters are not enabled")
		return
	}

	snapshot, err := s.deps.Counters.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("Failed to read counters", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "counters unavailable")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) failMode() masking.FailMode {
	return masking.FailMode(s.config.Masking.FailMode)
}

// errorStrings flattens a joined error into its parts
func errorStrings(err error) []string {
	if err == nil {
		return []string{}
	}

	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}

	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

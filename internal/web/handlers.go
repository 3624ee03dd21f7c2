package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/eventlog"
)

// Headers carrying the metrics tokens.
const (
	headerDebugToken = "X-Debug-Token"
	headerResetToken = "X-Reset-Token"
)

// metricsContentType is the Prometheus text exposition format.
const metricsContentType = "text/plain; version=0.0.4; charset=utf-8"

type suggestResponse struct {
	Results []core.MatchResult `json:"results"`
	Count   int                `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"limiter": s.service.Limiter().Status(),
	})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	results, err := s.service.Suggest(r.Context(), req.Anchor.toAnchor(), req.params(s.defaults))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if results == nil {
		results = []core.MatchResult{}
	}
	writeJSON(w, r, http.StatusOK, suggestResponse{Results: results, Count: len(results)})
}

func (s *Server) handlePOSuggest(w http.ResponseWriter, r *http.Request) {
	var req poSuggestRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := s.service.SuggestPO(r.Context(), req.toInvoice(), req.AmountTolPct, req.Limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if res.Matches == nil {
		res.Matches = []core.POMatch{}
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := s.service.Confirm(r.Context(), req.toConfirmation())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleMetricsText(w http.ResponseWriter, r *http.Request) {
	text, err := s.service.MetricsText()
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", metricsContentType)
	io.WriteString(w, text)
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.MetricsJSON(r.Header.Get(headerDebugToken))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// handleMetricsReset takes the token from X-Reset-Token or a JSON body.
func (s *Server) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(headerResetToken)
	if token == "" && r.ContentLength != 0 {
		var req resetRequest
		err := decodeJSON(w, r, s.validate, &req)
		if err != nil && !isEmptyBody(err) {
			respondError(w, r, err)
			return
		}
		token = req.Token
	}

	report, err := s.service.ResetMetrics(r.Context(), token)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleLogsConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.LogsConfig())
}

func (s *Server) handleLogsOverride(w http.ResponseWriter, r *http.Request) {
	var req logsOverrideRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		respondError(w, r, err)
		return
	}

	applied, err := s.service.LogsRuntimeOverride(r.Context(), eventlog.Overrides{
		SampleRate: req.SampleRate,
		Async:      req.Async,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"overrides": applied,
		"config":    s.service.LogsConfig(),
	})
}

func isEmptyBody(err error) bool {
	var ve core.ValidationError
	return errors.As(err, &ve) && ve.Field == "body" && ve.Message == emptyBodyMessage
}

package httptransport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"verigate/internal/auditlog"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/httputil"
)

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, err := h.reader.GetRequest(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	reqs, err := h.reader.ListRequestsByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	creds, err := h.reader.ListCredentialsByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"credentials": creds})
}

// handleLogs serves the operational log queries. Filters combine as
// most-specific-wins: user, then service, then level.
func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var entries []auditlog.Entry
	query := r.URL.Query()
	switch {
	case query.Get("user") != "":
		entries = h.audit.ByUser(query.Get("user"), limit)
	case query.Get("service") != "":
		entries = h.audit.ByService(query.Get("service"), limit)
	case query.Get("level") != "":
		entries = h.audit.ByLevel(auditlog.Level(query.Get("level")), limit)
	default:
		entries = h.audit.Recent(limit)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleLogsSummary(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.audit.Summary())
}

// handleHealth pings every registered dependency. Any failing check flips
// the status to 503 so orchestrators stop routing here.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	httputil.WriteJSON(w, status, body)
}

func (h *Handler) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.limiter.Status(r.Context(), chi.URLParam(r, "source"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/benchwire/hotlist/internal/analytics"
	"github.com/benchwire/hotlist/internal/batch"
	"github.com/benchwire/hotlist/internal/campaign"
	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/model"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

func newHandlers(deps Deps, logger *slog.Logger) *handlers {
	return &handlers{deps: deps, logger: logger}
}

// errorResponse is the JSON shape of every non-2xx reply
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- campaigns ---

func (h *handlers) createCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	in.Actor = actor(r)

	c, err := h.deps.Campaigns.Create(r.Context(), &in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, c)
}

func (h *handlers) listCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.CampaignListFilter{
		Status: model.CampaignStatus(q.Get("status")),
		Search: q.Get("search"),
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		h.writeError(w, errs.NewValidation("status", "unknown campaign status"))
		return
	}

	items, total, err := h.deps.Campaigns.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"campaigns": items,
		"total":     total,
	})
}

func (h *handlers) getCampaign(w http.ResponseWriter, r *http.Request) {
	detail, err := h.deps.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

func (h *handlers) updateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.UpdateInput
	if !h.decode(w, r, &in) {
		return
	}
	in.Actor = actor(r)

	c, err := h.deps.Campaigns.Update(r.Context(), chi.URLParam(r, "id"), &in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *handlers) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- candidates ---

func (h *handlers) selectCandidates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidates []batch.Selection `json:"candidates"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	rows, err := h.deps.Campaigns.SelectCandidates(r.Context(), chi.URLParam(r, "id"), req.Candidates, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"candidates": rows})
}

func (h *handlers) removeCandidate(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Campaigns.RemoveCandidate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ref"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setWorkAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Include bool `json:"include_work_authorization"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	err := h.deps.Campaigns.SetWorkAuthVisibility(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ref"), req.Include)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) rejectCandidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	err := h.deps.Campaigns.RejectCandidate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "ref"), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- lifecycle ---

func (h *handlers) scheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduleType model.ScheduleType   `json:"schedule_type"`
		Schedule     model.ScheduleConfig `json:"schedule"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.deps.Campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), req.ScheduleType, req.Schedule, actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *handlers) sendCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Campaigns.SendNow(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, c)
}

func (h *handlers) cancelCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Campaigns.Cancel(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

func (h *handlers) unlockCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Campaigns.Unlock(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// dispatchCampaign triggers a dispatch pass synchronously. The
// background worker covers due campaigns; this is the manual lever.
func (h *handlers) dispatchCampaign(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.Engine.Dispatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// --- analytics ---

func (h *handlers) campaignMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.deps.Campaigns.Get(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	m, err := h.deps.Recorder.Metrics(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EventListFilter{
		CampaignID:          chi.URLParam(r, "id"),
		CampaignCandidateID: q.Get("campaign_candidate_id"),
		EventType:           model.EventType(q.Get("event_type")),
		Limit:               queryInt(q.Get("limit"), 100),
		Offset:              queryInt(q.Get("offset"), 0),
	}
	if filter.EventType != "" && !filter.EventType.IsValid() {
		h.writeError(w, errs.NewValidation("event_type", "unknown event type"))
		return
	}

	events, err := h.deps.Recorder.Events(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *handlers) recordEvent(w http.ResponseWriter, r *http.Request) {
	var req analytics.RecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CampaignID = chi.URLParam(r, "id")

	event, err := h.deps.Recorder.Record(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, event)
}

// --- candidate directory ---

func (h *handlers) listDirectory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.deps.Directory.List(r.Context(), q.Get("search"), queryInt(q.Get("limit"), 50), queryInt(q.Get("offset"), 0))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"candidates": records})
}

func (h *handlers) getDirectory(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Directory.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) upsertDirectory(w http.ResponseWriter, r *http.Request) {
	var rec model.CandidateRecord
	if !h.decode(w, r, &rec) {
		return
	}
	rec.Ref = chi.URLParam(r, "ref")
	if rec.FirstName == "" && rec.LastName == "" {
		h.writeError(w, errs.NewValidation("name", "candidate name is required"))
		return
	}

	if err := h.deps.Directory.Upsert(r.Context(), &rec); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &rec)
}

// --- plumbing ---

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP statuses: invalid input and
// schedule problems are 400, lock contention is 409, a dispatch that
// cannot proceed is 422, missing resources are 404.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}

	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		resp.Field = ve.Field
		h.writeJSON(w, http.StatusBadRequest, resp)
	case errs.IsScheduling(err):
		h.writeJSON(w, http.StatusBadRequest, resp)
	case errs.IsLockConflict(err), errs.IsLocked(err):
		h.writeJSON(w, http.StatusConflict, resp)
	case errs.IsDispatch(err):
		h.writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errs.IsNotFound(err):
		h.writeJSON(w, http.StatusNotFound, resp)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

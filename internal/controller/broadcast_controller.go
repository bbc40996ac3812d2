package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/videobot/broadcast-backend/internal/errors"
	"github.com/videobot/broadcast-backend/internal/identity"
	"github.com/videobot/broadcast-backend/internal/repository"
	"github.com/videobot/broadcast-backend/internal/service"
)

// BroadcastController exposes the admin broadcast API.
type BroadcastController struct {
	Broadcasts *service.BroadcastService
	Stats      *service.StatsService
	Log        zerolog.Logger
}

// Routes mounts the broadcast endpoints on a chi router.
func (c *BroadcastController) Routes(r chi.Router) {
	r.Get("/broadcast", c.ListBroadcasts)
	r.Post("/broadcast", c.CreateBroadcast)
	r.Get("/broadcast/stats/overview", c.StatsOverview)
	r.Get("/broadcast/{id}", c.GetBroadcast)
	r.Put("/broadcast/{id}", c.UpdateBroadcast)
	r.Delete("/broadcast/{id}", c.DeleteBroadcast)
	r.Post("/broadcast/{id}/send", c.SendBroadcast)
	r.Post("/broadcast/{id}/approve", c.ApproveBroadcast)
	r.Post("/broadcast/{id}/cancel", c.CancelBroadcast)
	r.Post("/broadcast/{id}/pause", c.PauseBroadcast)
	r.Post("/broadcast/{id}/resume", c.ResumeBroadcast)
	r.Get("/broadcast/{id}/preview", c.PreviewBroadcast)
}

func (c *BroadcastController) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ListFilter{
		Status:     q.Get("status"),
		TargetType: q.Get("target_type"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
	}
	if v := q.Get("created_by"); v != "" {
		filter.CreatedBy, _ = strconv.Atoi(v)
	}
	if t, ok := parseTime(q.Get("date_from")); ok {
		filter.DateFrom = &t
	}
	if t, ok := parseTime(q.Get("date_to")); ok {
		filter.DateTo = &t
	}
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := c.Broadcasts.List(filter, page, pageSize)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       result.Broadcasts,
		"pagination": result.Pagination,
	})
}

func (c *BroadcastController) GetBroadcast(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	detail, err := c.Broadcasts.Get(id)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, detail)
}

func (c *BroadcastController) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	op, ok := identity.FromContext(r.Context())
	if !ok {
		c.writeError(w, r, appErrors.NewPermission("operator identity required"))
		return
	}

	var in service.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		c.writeError(w, r, appErrors.NewValidation("invalid request body"))
		return
	}

	b, err := c.Broadcasts.Create(op, in)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusCreated, b)
}

func (c *BroadcastController) UpdateBroadcast(w http.ResponseWriter, r *http.Request) {
	op, ok := identity.FromContext(r.Context())
	if !ok {
		c.writeError(w, r, appErrors.NewPermission("operator identity required"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	var in service.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		c.writeError(w, r, appErrors.NewValidation("invalid request body"))
		return
	}

	b, err := c.Broadcasts.Update(op, id, in)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, b)
}

func (c *BroadcastController) DeleteBroadcast(w http.ResponseWriter, r *http.Request) {
	op, ok := identity.FromContext(r.Context())
	if !ok {
		c.writeError(w, r, appErrors.NewPermission("operator identity required"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if err := c.Broadcasts.Delete(op, id); err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

func (c *BroadcastController) SendBroadcast(w http.ResponseWriter, r *http.Request) {
	c.lifecycleAction(w, r, c.Broadcasts.Send, "queued")
}

func (c *BroadcastController) CancelBroadcast(w http.ResponseWriter, r *http.Request) {
	c.lifecycleAction(w, r, c.Broadcasts.Cancel, "cancelled")
}

func (c *BroadcastController) PauseBroadcast(w http.ResponseWriter, r *http.Request) {
	c.lifecycleAction(w, r, c.Broadcasts.Pause, "paused")
}

func (c *BroadcastController) ResumeBroadcast(w http.ResponseWriter, r *http.Request) {
	c.lifecycleAction(w, r, c.Broadcasts.Resume, "resumed")
}

// lifecycleAction shares the shape of the four status-changing endpoints.
func (c *BroadcastController) lifecycleAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(identity.Operator, int) error,
	status string,
) {
	op, ok := identity.FromContext(r.Context())
	if !ok {
		c.writeError(w, r, appErrors.NewPermission("operator identity required"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if err := action(op, id); err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": status})
}

func (c *BroadcastController) ApproveBroadcast(w http.ResponseWriter, r *http.Request) {
	op, ok := identity.FromContext(r.Context())
	if !ok {
		c.writeError(w, r, appErrors.NewPermission("operator identity required"))
		return
	}
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	b, err := c.Broadcasts.Approve(op, id)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          b.ID,
		"approved_by": b.ApprovedBy,
		"approved_at": b.ApprovedAt,
	})
}

func (c *BroadcastController) PreviewBroadcast(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	preview, err := c.Broadcasts.Preview(id, limit)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, preview)
}

func (c *BroadcastController) StatsOverview(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	overview, err := c.Stats.Overview(days)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	c.writeJSON(w, http.StatusOK, overview)
}

// ====================== Helpers ======================

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		return 0, appErrors.NewValidation("invalid broadcast id")
	}
	return id, nil
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *BroadcastController) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError logs the full error and maps it onto the taxonomy's status
// code. Internal errors return a generic message so no detail leaks.
func (c *BroadcastController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := appErrors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		c.Log.Error().Err(err).Str("path", r.URL.Path).Str("method", r.Method).Msg("request failed")
		message = "internal error"
	} else {
		c.Log.Warn().Err(err).Str("path", r.URL.Path).Str("method", r.Method).Msg("request rejected")
	}
	c.writeJSON(w, status, map[string]interface{}{"error": message})
}

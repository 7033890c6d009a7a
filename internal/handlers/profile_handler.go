package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/services"
)

const maxJSONBody = 1 << 20

// ProfileHandler serves the user record and the data, note and command peeks.
type ProfileHandler struct {
	profiles *services.ProfileService
	timeout  time.Duration
}

func NewProfileHandler(profiles *services.ProfileService, timeout time.Duration) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, timeout: timeout}
}

// view picks which sub-view of the profile a route returns.
type view func(p *models.Profile) interface{}

func fullView(p *models.Profile) interface{}    { return p }
func dataView(p *models.Profile) interface{}    { return p.DataView() }
func noteView(p *models.Profile) interface{}    { return p.NoteView() }
func commandView(p *models.Profile) interface{} { return p.CommandView() }

// GetUser returns the full profile; unknown ids are 404.
func (h *ProfileHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, "GetUser", fullView)
}

func (h *ProfileHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.profiles.Delete(ctx, userID); err != nil {
		writeError(w, r, "DeleteUser", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"deleted": userID}))
}

func (h *ProfileHandler) GetData(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, "GetData", dataView)
}

func (h *ProfileHandler) UpdateData(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req models.UpdateDataRequest
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.profiles.UpdateData(ctx, userID, req)
	if err != nil {
		writeError(w, r, "UpdateData", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p.DataView()))
}

func (h *ProfileHandler) ClearData(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, "ClearData", h.profiles.ClearData, dataView)
}

func (h *ProfileHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, "GetNote", noteView)
}

func (h *ProfileHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req models.UpdateNoteRequest
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.profiles.UpdateNote(ctx, userID, req)
	if err != nil {
		writeError(w, r, "UpdateNote", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p.NoteView()))
}

func (h *ProfileHandler) ClearNote(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, "ClearNote", h.profiles.ClearNote, noteView)
}

func (h *ProfileHandler) GetCommand(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, "GetCommand", commandView)
}

func (h *ProfileHandler) UpdateCommand(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req models.UpdateCommandRequest
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.profiles.UpdateCommand(ctx, userID, req)
	if err != nil {
		writeError(w, r, "UpdateCommand", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p.CommandView()))
}

func (h *ProfileHandler) ClearCommand(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, "ClearCommand", h.profiles.ClearCommand, commandView)
}

func (h *ProfileHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.clear(w, r, "ClearAll", h.profiles.ClearAll, fullView)
}

func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, op string, v view) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		writeError(w, r, op, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(v(p)))
}

type clearFunc func(ctx context.Context, userID string) (*models.Profile, error)

func (h *ProfileHandler) clear(w http.ResponseWriter, r *http.Request, op string, fn clearFunc, v view) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := fn(ctx, userID)
	if err != nil {
		writeError(w, r, op, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(v(p)))
}

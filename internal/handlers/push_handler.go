package handlers

import (
	"net/http"
	"time"

	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/services"
)

type PushHandler struct {
	push     *services.PushService
	profiles *services.ProfileService
	timeout  time.Duration
}

func NewPushHandler(push *services.PushService, profiles *services.ProfileService, timeout time.Duration) *PushHandler {
	return &PushHandler{push: push, profiles: profiles, timeout: timeout}
}

// Subscribe stores the browser's PushSubscription JSON, replacing any earlier one.
// The profile is created when missing.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req models.SubscribeRequest
	if !decodeJSON(w, r, maxJSONBody, &req) {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	if _, err := h.profiles.Ensure(ctx, userID); err != nil {
		writeError(w, r, "Subscribe", userID, err)
		return
	}
	sub, err := h.push.Subscribe(ctx, userID, req)
	if err != nil {
		writeError(w, r, "Subscribe", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"subscription_id": sub.ID}))
}

func (h *PushHandler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.push.PublicKey()
	if err != nil {
		writeError(w, r, "VAPIDPublicKey", "", err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(map[string]string{"public_key": key}))
}

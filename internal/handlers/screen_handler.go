package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sensus/peek/internal/logging"
	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/services"
)

var errNotImage = errors.New("not an image")

// ScreenHandler serves the screen peek, including screenshot upload and download.
type ScreenHandler struct {
	profiles  *services.ProfileService
	maxSizeMB int64
	timeout   time.Duration
}

func NewScreenHandler(profiles *services.ProfileService, maxSizeMB int64, timeout time.Duration) *ScreenHandler {
	return &ScreenHandler{
		profiles:  profiles,
		maxSizeMB: maxSizeMB,
		timeout:   timeout,
	}
}

func (h *ScreenHandler) maxBytes() int64 {
	return h.maxSizeMB * 1024 * 1024
}

func (h *ScreenHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		writeError(w, r, "GetScreen", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p.ScreenView()))
}

// Update takes contact, url and an optional screenshot_base64 (bare or data: URL).
func (h *ScreenHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	// base64 inflates by 4/3; leave room for the other fields.
	var req models.UpdateScreenRequest
	if !decodeJSON(w, r, h.maxBytes()*4/3+maxJSONBody, &req) {
		return
	}

	upd := services.ScreenUpdate{Contact: req.Contact, URL: req.URL}
	if req.ScreenshotBase64 != nil && *req.ScreenshotBase64 != "" {
		shot, err := decodeScreenshot(*req.ScreenshotBase64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "screenshot_base64 is not a valid base64 image"))
			return
		}
		if int64(len(shot.Data)) > h.maxBytes() {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.NewErrorResponse(models.CodePayloadTooLarge, "Screenshot too large"))
			return
		}
		upd.Screenshot = shot
	}

	h.apply(w, r, "UpdateScreen", userID, upd)
}

// Upload takes a multipart form with a "screenshot" file and optional contact and
// url fields.
func (h *ScreenHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	// Limit request body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes()+maxJSONBody)

	if err := r.ParseMultipartForm(h.maxBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.NewErrorResponse(models.CodePayloadTooLarge, "Screenshot too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "Invalid form data"))
		return
	}

	file, _, err := r.FormFile("screenshot")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "No screenshot file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes()+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "Could not read screenshot"))
		return
	}
	if int64(len(data)) > h.maxBytes() {
		writeJSON(w, http.StatusRequestEntityTooLarge, models.NewErrorResponse(models.CodePayloadTooLarge, "Screenshot too large"))
		return
	}

	contentType, err := sniffImage(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(models.CodeInvalidInput, "Invalid image type. Allowed: JPEG, PNG, GIF, WebP"))
		return
	}

	upd := services.ScreenUpdate{
		Screenshot: &services.ScreenshotUpload{Data: data, ContentType: contentType},
	}
	if vals, ok := r.MultipartForm.Value["contact"]; ok && len(vals) > 0 {
		upd.Contact = &vals[0]
	}
	if vals, ok := r.MultipartForm.Value["url"]; ok && len(vals) > 0 {
		upd.URL = &vals[0]
	}

	h.apply(w, r, "UploadScreen", userID, upd)
}

func (h *ScreenHandler) apply(w http.ResponseWriter, r *http.Request, op, userID string, upd services.ScreenUpdate) {
	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.profiles.UpdateScreen(ctx, userID, upd)
	if err != nil {
		writeError(w, r, op, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p.ScreenView()))
}

// Screenshot streams the stored binary.
func (h *ScreenHandler) Screenshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	rc, contentType, err := h.profiles.OpenScreenshot(ctx, userID)
	if err != nil {
		writeError(w, r, "GetScreenshot", userID, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("user", userID).Msg("screenshot stream interrupted")
	}
}

func (h *ScreenHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := contextWithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.profiles.ClearScreen(ctx, userID)
	if err != nil {
		writeError(w, r, "ClearScreen", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(p.ScreenView()))
}

// decodeScreenshot accepts "data:image/png;base64,...." or bare base64.
func decodeScreenshot(s string) (*services.ScreenshotUpload, error) {
	payload := s
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 || !strings.HasSuffix(s[:i], ";base64") {
			return nil, errNotImage
		}
		payload = s[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, err
		}
	}

	contentType, err := sniffImage(data)
	if err != nil {
		return nil, err
	}
	return &services.ScreenshotUpload{Data: data, ContentType: contentType}, nil
}

func sniffImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errNotImage
	}
	contentType := http.DetectContentType(data)
	if !isValidImageType(contentType) {
		return "", errNotImage
	}
	return contentType, nil
}

func isValidImageType(contentType string) bool {
	validTypes := map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	return validTypes[contentType]
}

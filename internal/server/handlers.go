package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Yicong-Lin-213/AilyCart/internal/geometry"
	"github.com/Yicong-Lin-213/AilyCart/internal/ledger"
	"github.com/Yicong-Lin-213/AilyCart/internal/phase"
	"github.com/Yicong-Lin-213/AilyCart/internal/pipeline"
	"github.com/Yicong-Lin-213/AilyCart/internal/receipt"
	"github.com/Yicong-Lin-213/AilyCart/internal/session"
)

// maxPhotoSize bounds the multipart capture upload (high-resolution phone photos)
const maxPhotoSize = int64(50 << 20)

// sessionResponse is the session snapshot plus the notice count
type sessionResponse struct {
	session.View
	PendingNotices int `json:"pending_notices"`
}

// jsonError writes an error response as JSON
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	if kind, ok := pipeline.KindOf(err); ok && kind == pipeline.KindGeometryUnavailable {
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.Is(err, phase.ErrInvalidTransition),
		errors.Is(err, session.ErrNotEditable),
		errors.Is(err, session.ErrNotScanning):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidFrame),
		errors.Is(err, receipt.ErrInvalidDate),
		errors.Is(err, geometry.ErrInvalidScreen):
		return http.StatusBadRequest
	case errors.Is(err, receipt.ErrItemIndex),
		errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail logs server errors and writes the error response
func fail(w http.ResponseWriter, action string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("Error handling request", "action", action, "error", err)
		jsonError(w, "Internal server error", code)
		return
	}
	jsonError(w, err.Error(), code)
}

func (s *Server) writeSession(w http.ResponseWriter, code int) {
	writeJSON(w, code, sessionResponse{
		View:           s.deps.Session.Snapshot(),
		PendingNotices: s.deps.Notices.Pending(),
	})
}

// handleGetSession returns the session snapshot
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.writeSession(w, http.StatusOK)
}

// handleDrainNotices returns and clears the pending notices
func (s *Server) handleDrainNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Notices.Drain())
}

// handlePermission records the camera permission outcome
func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Granted *bool `json:"granted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Granted == nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.deps.Permission.Set(*req.Granted)
	s.writeSession(w, http.StatusOK)
}

// handleEvent adapts a session event to a handler returning the new snapshot
func (s *Server) handleEvent(event func(Controller) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := event(s.deps.Session); err != nil {
			fail(w, r.URL.Path, err)
			return
		}
		s.writeSession(w, http.StatusOK)
	}
}

// handleMeasureFrame records the guide frame
func (s *Server) handleMeasureFrame(w http.ResponseWriter, r *http.Request) {
	var frame geometry.CaptureFrame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.deps.Session.MeasureFrame(frame); err != nil {
		fail(w, "measure frame", err)
		return
	}
	s.writeSession(w, http.StatusOK)
}

// handleCycleFlash advances the flash mode
func (s *Server) handleCycleFlash(w http.ResponseWriter, r *http.Request) {
	mode, err := s.deps.Session.CycleFlash()
	if err != nil {
		fail(w, "cycle flash", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]session.FlashMode{"flash": mode})
}

// handleCapture accepts the shutter photo and the screen context and starts a run
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "Photo is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	screen, err := parseScreen(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("photo")
	if err != nil {
		jsonError(w, "No photo provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading photo data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading photo. Please try again.", http.StatusInternalServerError)
		return
	}

	uri := r.FormValue("uri")
	if uri == "" {
		uri = header.Filename
	}

	runID, err := s.deps.Session.Capture(geometry.Photo{
		URI:         uri,
		Data:        data,
		ContentType: photoContentType(header.Header.Get("Content-Type"), header.Filename),
	}, screen)
	if err != nil {
		fail(w, "capture", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":  runID,
		"session": s.deps.Session.Snapshot(),
	})
}

// parseScreen reads the screen context form fields. Chrome is an optional
// comma-separated list of heights; without it the default chrome applies.
func parseScreen(r *http.Request) (geometry.ScreenContext, error) {
	var screen geometry.ScreenContext

	viewport, err := strconv.ParseFloat(r.FormValue("viewport_width"), 64)
	if err != nil {
		return screen, fmt.Errorf("viewport_width is required")
	}
	screen.ViewportWidth = viewport

	if v := r.FormValue("safe_area_top"); v != "" {
		top, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return screen, fmt.Errorf("invalid safe_area_top %q", v)
		}
		screen.SafeAreaTop = top
	}

	screen.Chrome = geometry.DefaultChrome()
	if v := r.FormValue("chrome"); v != "" {
		screen.Chrome = nil
		for _, part := range strings.Split(v, ",") {
			h, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return screen, fmt.Errorf("invalid chrome %q", v)
			}
			screen.Chrome = append(screen.Chrome, h)
		}
	}

	return screen, nil
}

// photoContentType falls back to the file extension when the part has no type
func photoContentType(contentType, filename string) string {
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".webp":
			contentType = "image/webp"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// handleConfirm persists the receipt and returns the ledger entry ID
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.Session.Confirm()
	if err != nil {
		fail(w, "confirm", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"entry_id": id})
}

// handleEditItem renames an item and/or sets its total
func (s *Server) handleEditItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		jsonError(w, "Invalid item index", http.StatusBadRequest)
		return
	}

	var req struct {
		Name  *string `json:"name"`
		Total *string `json:"total"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Name == nil && req.Total == nil) {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name != nil {
		if err := s.deps.Session.RenameItem(index, *req.Name); err != nil {
			fail(w, "rename item", err)
			return
		}
	}
	if req.Total != nil {
		if err := s.deps.Session.SetItemTotal(index, *req.Total); err != nil {
			fail(w, "set item total", err)
			return
		}
	}
	s.writeSession(w, http.StatusOK)
}

// handleEditMerchant replaces the merchant name
func (s *Server) handleEditMerchant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.deps.Session.SetMerchantName(req.Name); err != nil {
		fail(w, "set merchant", err)
		return
	}
	s.writeSession(w, http.StatusOK)
}

// handleEditDate replaces the transaction date
func (s *Server) handleEditDate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.deps.Session.SetTransactionDate(req.Date); err != nil {
		fail(w, "set date", err)
		return
	}
	s.writeSession(w, http.StatusOK)
}

// handleListReceipts returns all confirmed receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Receipts.List()
	if err != nil {
		fail(w, "list receipts", err)
		return
	}

	// Ensure we always return an array, not nil
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetReceipt returns a single confirmed receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Receipts.Get(r.PathValue("id"))
	if err != nil {
		fail(w, "get receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleCorrections returns the accumulated name corrections
func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	corrections, err := s.deps.Receipts.Corrections()
	if err != nil {
		fail(w, "list corrections", err)
		return
	}
	writeJSON(w, http.StatusOK, corrections)
}

// handlePublicObject serves an uploaded image
func (s *Server) handlePublicObject(w http.ResponseWriter, r *http.Request) {
	data, err := s.deps.Objects.Get(r.PathValue("bucket"), r.PathValue("key"))
	if err != nil {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

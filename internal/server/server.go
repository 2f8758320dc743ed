package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Yicong-Lin-213/AilyCart/internal/geometry"
	"github.com/Yicong-Lin-213/AilyCart/internal/ledger"
	"github.com/Yicong-Lin-213/AilyCart/internal/session"
)

// Controller is the session the HTTP surface drives
type Controller interface {
	Snapshot() session.View
	RequestScan() error
	MeasureFrame(frame geometry.CaptureFrame) error
	CycleFlash() (session.FlashMode, error)
	Capture(photo geometry.Photo, screen geometry.ScreenContext) (string, error)
	Refocus() error
	Back() error
	Cancel() error
	Retake() error
	Confirm() (string, error)
	RenameItem(index int, name string) error
	SetItemTotal(index int, text string) error
	SetMerchantName(name string) error
	SetTransactionDate(date string) error
}

// Notices is the queue of user-facing failure notices
type Notices interface {
	Pending() int
	Drain() []session.Notice
}

// Permission lets the client report the camera permission outcome
type Permission interface {
	Set(granted bool)
}

// Receipts reads confirmed receipts
type Receipts interface {
	Get(id string) (*ledger.Entry, error)
	List() ([]*ledger.Entry, error)
	Corrections() (map[string]string, error)
}

// Objects serves stored images from local storage
type Objects interface {
	Get(bucket, key string) ([]byte, error)
}

// Deps groups the collaborators the server needs. Objects may be nil when
// images are served by a remote object store.
type Deps struct {
	Session    Controller
	Notices    Notices
	Permission Permission
	Receipts   Receipts
	Objects    Objects
}

// Server handles HTTP requests for a capture session
type Server struct {
	deps      Deps
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(deps Deps, basicAuth BasicAuth) *Server {
	return NewServerWithMux(deps, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(deps Deps, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		deps:      deps,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="AilyCart"`)
			jsonError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Session
	s.mux.HandleFunc("GET /api/session/notices", s.requireAuth(s.handleDrainNotices))
	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("POST /api/session/permission", s.requireAuth(s.handlePermission))
	s.mux.HandleFunc("POST /api/session/scan", s.requireAuth(s.handleEvent(Controller.RequestScan)))
	s.mux.HandleFunc("PUT /api/session/frame", s.requireAuth(s.handleMeasureFrame))
	s.mux.HandleFunc("POST /api/session/flash", s.requireAuth(s.handleCycleFlash))
	s.mux.HandleFunc("POST /api/session/capture", s.requireAuth(s.handleCapture))
	s.mux.HandleFunc("POST /api/session/refocus", s.requireAuth(s.handleEvent(Controller.Refocus)))
	s.mux.HandleFunc("POST /api/session/back", s.requireAuth(s.handleEvent(Controller.Back)))
	s.mux.HandleFunc("POST /api/session/cancel", s.requireAuth(s.handleEvent(Controller.Cancel)))
	s.mux.HandleFunc("POST /api/session/retake", s.requireAuth(s.handleEvent(Controller.Retake)))
	s.mux.HandleFunc("POST /api/session/confirm", s.requireAuth(s.handleConfirm))

	// Edits
	s.mux.HandleFunc("PATCH /api/session/items/{index}", s.requireAuth(s.handleEditItem))
	s.mux.HandleFunc("PATCH /api/session/merchant", s.requireAuth(s.handleEditMerchant))
	s.mux.HandleFunc("PATCH /api/session/date", s.requireAuth(s.handleEditDate))

	// Confirmed receipts
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("GET /api/corrections", s.requireAuth(s.handleCorrections))

	// Uploaded images must stay reachable without credentials for the extraction service
	if s.deps.Objects != nil {
		s.mux.HandleFunc("GET /public/{bucket}/{key}", s.handlePublicObject)
	}
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corsMiddleware(s.mux).ServeHTTP(w, r)
}

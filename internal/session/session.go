package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Yicong-Lin-213/AilyCart/internal/geometry"
	"github.com/Yicong-Lin-213/AilyCart/internal/ledger"
	"github.com/Yicong-Lin-213/AilyCart/internal/phase"
	"github.com/Yicong-Lin-213/AilyCart/internal/pipeline"
	"github.com/Yicong-Lin-213/AilyCart/internal/receipt"
)

var (
	// ErrNotEditable is returned when an edit arrives outside the result phase
	ErrNotEditable = errors.New("receipt is not editable")
	// ErrNotScanning is returned when a camera operation arrives outside the scanning phase
	ErrNotScanning = errors.New("camera is not active")
	// ErrInvalidFrame is returned for a frame with non-positive dimensions
	ErrInvalidFrame = errors.New("invalid capture frame")
)

// Runner executes one capture run and releases the images of results the
// session does not keep
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
	Discard(ctx context.Context, result *pipeline.Result)
}

// Saver persists a confirmed receipt
type Saver interface {
	Save(entry *ledger.Entry) error
}

// IDGenerator generates unique IDs for sessions, runs and entries
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type ulidGenerator struct{}

func (ulidGenerator) Generate() string {
	return ulid.Make().String()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// View is a point-in-time copy of the session state
type View struct {
	SessionID     string                 `json:"session_id"`
	Phase         phase.Phase            `json:"phase"`
	Flash         FlashMode              `json:"flash"`
	Greeting      string                 `json:"greeting"`
	Status        string                 `json:"status,omitempty"`
	Processing    bool                   `json:"processing"`
	RunID         string                 `json:"run_id,omitempty"`
	Frame         *geometry.CaptureFrame `json:"frame,omitempty"`
	CapturedURI   string                 `json:"captured_uri,omitempty"`
	ProcessedURI  string                 `json:"processed_uri,omitempty"`
	ImageURLs     []string               `json:"image_urls,omitempty"`
	Receipt       *receipt.Receipt       `json:"receipt"`
	Corrections   map[string]string      `json:"corrections,omitempty"`
	HasItems      bool                   `json:"has_items"`
	DisplayTotal  string                 `json:"display_total,omitempty"`
	VoiceFeedback bool                   `json:"voice_feedback"`
}

// Session drives the phase machine for one user and runs its effects.
// The mutex guards fields only; pipeline runs execute outside it.
type Session struct {
	runner   Runner
	gate     PermissionGate
	notifier Notifier
	saver    Saver
	ids      IDGenerator
	clock    TimeSource

	id      string
	profile pipeline.Profile

	mu           sync.Mutex
	phase        phase.Phase
	frame        *geometry.CaptureFrame
	flash        FlashMode
	capturedURI  string
	processedURI string
	processing   bool
	status       string
	runID        string
	cancel       context.CancelFunc
	model        *receipt.Model
	imageURLs    []string
	lastEntryID  string

	runs sync.WaitGroup
}

// New creates a Session in the Hello phase
func New(runner Runner, gate PermissionGate, notifier Notifier, saver Saver, profile pipeline.Profile) *Session {
	return NewWithDeps(runner, gate, notifier, saver, profile, ulidGenerator{}, systemClock{})
}

// NewWithDeps creates a Session with custom dependencies for testing
func NewWithDeps(runner Runner, gate PermissionGate, notifier Notifier, saver Saver, profile pipeline.Profile, ids IDGenerator, clock TimeSource) *Session {
	return &Session{
		runner:   runner,
		gate:     gate,
		notifier: notifier,
		saver:    saver,
		ids:      ids,
		clock:    clock,
		id:       ids.Generate(),
		profile:  profile,
		phase:    phase.Hello,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Greeting is the idle-screen prompt for the profile's display name
func (s *Session) Greeting() string {
	name := s.profile.DisplayName
	if name == "" {
		name = "User"
	}
	return fmt.Sprintf("Hello, %s. Ready to scan?", name)
}

// Phase returns the current phase
func (s *Session) Phase() phase.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// action is one event plus the data its effects consume
type action struct {
	event   phase.Event
	capture *pipeline.Input
	result  *pipeline.Result
	failure *pipeline.Error
}

// followup is the work an applied action leaves to run after the lock is released
type followup struct {
	notices []*pipeline.Error
	start   func()
}

// RequestScan moves from Hello to Scanning when camera permission is granted.
// Without permission it requests it and stays in Hello.
func (s *Session) RequestScan() error {
	return s.fire(action{event: phase.Event{
		Kind:              phase.ScanRequested,
		PermissionGranted: s.gate.Granted(),
	}})
}

// MeasureFrame records the on-screen guide frame from the latest layout
func (s *Session) MeasureFrame(frame geometry.CaptureFrame) error {
	if !frame.Valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidFrame, frame)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phase.Scanning {
		return ErrNotScanning
	}
	s.frame = &frame
	return nil
}

// CycleFlash advances the flash mode and returns the new one
func (s *Session) CycleFlash() (FlashMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phase.Scanning {
		return s.flash, ErrNotScanning
	}
	s.flash = s.flash.Next()
	return s.flash, nil
}

// Capture hands a completed shutter photo to a new pipeline run and returns
// the run ID. The run completes asynchronously.
func (s *Session) Capture(photo geometry.Photo, screen geometry.ScreenContext) (string, error) {
	s.mu.Lock()
	in := &pipeline.Input{
		Photo:   photo,
		Screen:  screen,
		Profile: s.profile,
	}
	if s.frame != nil {
		frame := *s.frame
		in.Frame = &frame
	}
	f, err := s.applyLocked(action{
		event:   phase.Event{Kind: phase.ShutterCompleted, FrameMeasured: in.Frame != nil},
		capture: in,
	})
	runID := s.runID
	s.mu.Unlock()

	s.flush(f)
	if err != nil {
		return "", err
	}
	if runID == "" {
		return "", pipeline.NewError(pipeline.KindGeometryUnavailable, geometry.ErrGeometryUnavailable)
	}
	return runID, nil
}

// Refocus restarts the capture without leaving Scanning
func (s *Session) Refocus() error {
	return s.fire(action{event: phase.Event{Kind: phase.Refocused}})
}

// Back leaves the camera for the idle screen
func (s *Session) Back() error {
	return s.fire(action{event: phase.Event{Kind: phase.Back}})
}

// Cancel abandons the run in flight; its result is discarded
func (s *Session) Cancel() error {
	return s.fire(action{event: phase.Event{Kind: phase.Cancelled}})
}

// Retake discards the result and returns to the camera
func (s *Session) Retake() error {
	return s.fire(action{event: phase.Event{Kind: phase.Retake}})
}

// Confirm persists the edited receipt and returns to Hello. The entry ID is
// returned. When persisting fails the session stays in Result.
func (s *Session) Confirm() (string, error) {
	s.mu.Lock()
	f, err := s.applyLocked(action{event: phase.Event{Kind: phase.Confirm}})
	id := ""
	if err == nil {
		id = s.lastEntryID
	}
	s.mu.Unlock()

	s.flush(f)
	return id, err
}

// RenameItem renames an extracted line item
func (s *Session) RenameItem(index int, name string) error {
	return s.edit(func(m *receipt.Model) error {
		return m.RenameItem(index, name)
	})
}

// SetItemTotal sets an item's total from user text
func (s *Session) SetItemTotal(index int, text string) error {
	return s.edit(func(m *receipt.Model) error {
		return m.SetItemTotal(index, text)
	})
}

// SetMerchantName replaces the merchant name
func (s *Session) SetMerchantName(name string) error {
	return s.edit(func(m *receipt.Model) error {
		m.SetMerchantName(name)
		return nil
	})
}

// SetTransactionDate replaces the transaction date
func (s *Session) SetTransactionDate(date string) error {
	return s.edit(func(m *receipt.Model) error {
		return m.SetTransactionDate(date)
	})
}

// edit applies fn to the model under the session lock, ordered against phase events
func (s *Session) edit(fn func(m *receipt.Model) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != phase.Result || s.model == nil {
		return ErrNotEditable
	}
	return fn(s.model)
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID:     s.id,
		Phase:         s.phase,
		Flash:         s.flash,
		Greeting:      s.Greeting(),
		Status:        s.status,
		Processing:    s.processing,
		RunID:         s.runID,
		CapturedURI:   s.capturedURI,
		ProcessedURI:  s.processedURI,
		ImageURLs:     append([]string(nil), s.imageURLs...),
		VoiceFeedback: s.profile.VoiceFeedback,
	}
	if s.frame != nil {
		frame := *s.frame
		v.Frame = &frame
	}
	if s.model != nil {
		v.Receipt = s.model.Snapshot()
		v.Corrections = s.model.Corrections()
		v.HasItems = s.model.HasItems()
		v.DisplayTotal = s.model.DisplayTotal()
	}
	return v
}

// Close cancels any run in flight and waits for it to return. The
// cancelled run's result is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.runID = ""
	s.mu.Unlock()
	s.runs.Wait()
}

func (s *Session) fire(a action) error {
	s.mu.Lock()
	f, err := s.applyLocked(a)
	s.mu.Unlock()

	s.flush(f)
	return err
}

// flush runs what must not happen under the lock
func (s *Session) flush(f followup) {
	for _, n := range f.notices {
		s.notifier.Notify(Notice{
			Kind:       n.Kind,
			Message:    n.Notice(),
			Persistent: n.Persistent(),
			At:         s.clock.Now(),
		})
	}
	if f.start != nil {
		f.start()
	}
}

// applyLocked transitions the phase and runs the effects. Effects run in
// order and the phase only changes once they all succeed.
func (s *Session) applyLocked(a action) (followup, error) {
	var f followup

	out, err := phase.Transition(s.phase, a.event)
	if err != nil {
		return f, err
	}

	for _, eff := range out.Effects {
		switch eff {
		case phase.RequestPermission:
			s.gate.Request()
		case phase.NotifyPermissionDenied:
			f.notices = append(f.notices, pipeline.NewError(pipeline.KindPermissionDenied, nil))
		case phase.NotifyGeometryUnavailable:
			f.notices = append(f.notices, pipeline.NewError(pipeline.KindGeometryUnavailable, geometry.ErrGeometryUnavailable))
		case phase.ResetCapture:
			s.resetCaptureLocked()
		case phase.ResetSession:
			s.resetCaptureLocked()
			s.frame = nil
			s.flash = FlashOff
			s.model = nil
			s.imageURLs = nil
		case phase.StartPipeline:
			f.start = s.startLocked(*a.capture)
		case phase.CancelPipeline:
			if s.cancel != nil {
				s.cancel()
			}
			slog.Info("Pipeline run cancelled", "session_id", s.id, "run_id", s.runID)
		case phase.PopulateResult:
			s.model = receipt.NewModel(a.result.Receipt)
			s.imageURLs = a.result.ImageURLs
			if len(a.result.ImageURLs) > 0 {
				s.processedURI = a.result.ImageURLs[0]
			}
			s.processing = false
			s.status = ""
			s.runID = ""
			s.cancel = nil
		case phase.NotifyFailure:
			f.notices = append(f.notices, a.failure)
		case phase.DiscardReceipt:
			s.model = nil
			s.imageURLs = nil
		case phase.PersistReceipt:
			if err := s.persistLocked(); err != nil {
				return f, err
			}
		}
	}

	if s.phase != out.Next {
		slog.Info("Phase changed", "session_id", s.id, "from", s.phase, "to", out.Next, "event", a.event.Kind)
	}
	s.phase = out.Next
	return f, nil
}

func (s *Session) resetCaptureLocked() {
	s.capturedURI = ""
	s.processedURI = ""
	s.processing = false
	s.status = ""
	s.runID = ""
	s.cancel = nil
}

// startLocked claims a new run ID and returns the function that launches it
func (s *Session) startLocked(in pipeline.Input) func() {
	runID := s.ids.Generate()
	ctx, cancel := context.WithCancel(context.Background())

	s.runID = runID
	s.cancel = cancel
	s.processing = true
	s.capturedURI = in.Photo.URI
	s.status = ""

	in.Progress = func(step pipeline.Step) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.runID == runID {
			s.status = step.Status()
		}
	}

	s.runs.Add(1)
	return func() {
		go func() {
			defer s.runs.Done()
			defer cancel()

			result, err := s.runner.Run(ctx, in)
			s.complete(runID, result, err)
		}()
	}
}

// complete applies a run's outcome unless the run is no longer current
func (s *Session) complete(runID string, result *pipeline.Result, err error) {
	s.mu.Lock()
	if runID != s.runID || s.phase != phase.Processing {
		s.mu.Unlock()
		slog.Info("Discarding stale pipeline result", "session_id", s.id, "run_id", runID)
		if err == nil && result != nil {
			s.runner.Discard(context.Background(), result)
		}
		return
	}

	a := action{event: phase.Event{Kind: phase.AnalysisSucceeded}, result: result}
	if err == nil && (result == nil || result.Receipt == nil) {
		err = pipeline.NewError(pipeline.KindParse, receipt.ErrInvalidShape)
	}
	if err != nil {
		var pe *pipeline.Error
		if !errors.As(err, &pe) {
			pe = pipeline.NewError(pipeline.KindAnalysis, err)
		}
		a = action{event: phase.Event{Kind: phase.PipelineFailed}, failure: pe}
	}

	f, applyErr := s.applyLocked(a)
	s.mu.Unlock()

	if applyErr != nil {
		slog.Error("Failed to apply pipeline result", "session_id", s.id, "run_id", runID, "error", applyErr)
	}
	s.flush(f)
}

func (s *Session) persistLocked() error {
	if s.model == nil {
		return fmt.Errorf("persisting receipt: no receipt")
	}

	entry := &ledger.Entry{
		ID:          s.ids.Generate(),
		SessionID:   s.id,
		Receipt:     s.model.Snapshot(),
		Corrections: s.model.Corrections(),
		ImageURLs:   append([]string(nil), s.imageURLs...),
		DisplayName: s.profile.DisplayName,
		ConfirmedAt: s.clock.Now(),
	}
	if err := s.saver.Save(entry); err != nil {
		return fmt.Errorf("persisting receipt: %w", err)
	}

	s.lastEntryID = entry.ID
	slog.Info("Receipt confirmed",
		"session_id", s.id,
		"entry_id", entry.ID,
		"merchant", entry.Receipt.MerchantName(),
		"corrections", len(entry.Corrections),
	)
	return nil
}

package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/db/models"
)

var ErrNoOverlay = errors.New("document has no page overlay")

// Event is one client input, as received over HTTP or the websocket.
type Event struct {
	Type      string  `json:"type"`
	Page      int     `json:"page,omitempty"`
	X         float64 `json:"x,omitempty"`
	Y         float64 `json:"y,omitempty"`
	Tool      Tool    `json:"tool,omitempty"`
	Text      string  `json:"text,omitempty"`
	ImageData string  `json:"imageData,omitempty"`
	Key       string  `json:"key,omitempty"`
	Shift     bool    `json:"shift,omitempty"`
	ID        string  `json:"id,omitempty"`
}

func (e Event) point() Point { return Point{X: e.X, Y: e.Y} }

type PendingView struct {
	Annotation *models.Annotation `json:"annotation,omitempty"`
	Signature  *models.Signature  `json:"signature,omitempty"`
}

type EditingView struct {
	ID    string `json:"id"`
	Draft string `json:"draft"`
}

type SurfaceSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Snapshot is everything a client needs to draw the session.
type Snapshot struct {
	SessionID  string       `json:"sessionId"`
	DocumentID string       `json:"documentId"`
	Kind       Kind         `json:"kind"`
	HTML       string       `json:"html,omitempty"`
	Viewport   *Viewport    `json:"viewport,omitempty"`
	State      State        `json:"state"`
	Tool       Tool         `json:"tool,omitempty"`
	Capturing  bool         `json:"capturing,omitempty"`
	Pending    *PendingView `json:"pending,omitempty"`
	Editing    *EditingView `json:"editing,omitempty"`
	Surface    *SurfaceSize `json:"surface,omitempty"`
	Layer      *Layer       `json:"layer,omitempty"`
	Placement  *Placement   `json:"placement,omitempty"`
}

// Closer is a Sink that must be drained when the session ends.
type Closer interface {
	Sink
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type SessionOptions struct {
	Limits   ZoomLimits
	Renderer *Renderer
	Sink     Closer
	IDs      IDSource
	Logger   *zap.Logger
}

// Session is one open document view. All methods are safe for concurrent
// use; events are applied one at a time.
type Session struct {
	ID         string
	DocumentID string

	mu         sync.Mutex
	loaded     *Loaded
	vp         *Viewport
	ctrl       *Controller
	renderer   *Renderer
	sink       Closer
	logger     *zap.Logger
	lastActive time.Time
	subs       map[int]chan Snapshot
	nextSub    int
}

func NewSession(id string, doc *models.Document, loaded *Loaded, opts SessionOptions) (*Session, error) {
	anns, err := doc.GetAnnotations()
	if err != nil {
		return nil, apperr.Format("annotations", err)
	}
	sigs, err := doc.GetSignatures()
	if err != nil {
		return nil, apperr.Format("signatures", err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Renderer == nil {
		opts.Renderer = NewRenderer(nil)
	}

	pages := 0
	if loaded.Kind == KindPDF && loaded.PDF != nil {
		pages = loaded.PDF.NumPages()
	}
	vp := NewViewport(pages, opts.Limits)

	s := &Session{
		ID:         id,
		DocumentID: doc.ID,
		loaded:     loaded,
		vp:         vp,
		renderer:   opts.Renderer,
		sink:       opts.Sink,
		logger: opts.Logger.With(
			zap.String("session_id", id),
			zap.String("document_id", doc.ID),
		),
		lastActive: time.Now(),
		subs:       make(map[int]chan Snapshot),
	}
	var sink Sink
	if opts.Sink != nil {
		sink = opts.Sink
	}
	s.ctrl = NewController(vp, anns, sigs, sink, opts.IDs)
	s.resize()
	return s, nil
}

func (s *Session) Kind() Kind { return s.loaded.Kind }

// LastActive is when the session last handled an event.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Context is the tool-panel handle for arming placements.
func (s *Session) Context() SessionContext {
	return lockedContext{s: s}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(nil)
}

// ApplyEvent dispatches one event and returns the resulting snapshot.
// Subscribers receive the same snapshot.
func (s *Session) ApplyEvent(ev Event) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	if s.loaded.Kind != KindPDF {
		return s.snapshot(nil), fmt.Errorf("%w: %s", ErrNoOverlay, ev.Type)
	}

	placement, err := s.dispatch(ev)
	if err != nil {
		s.logger.Debug("Event rejected", zap.String("event", ev.Type), zap.Error(err))
		return s.snapshot(nil), err
	}
	snap := s.snapshot(placement)
	s.publish(snap)
	return snap, nil
}

func (s *Session) dispatch(ev Event) (*Placement, error) {
	c := s.ctrl
	switch ev.Type {
	case "zoom_in":
		s.vp.ZoomIn()
	case "zoom_out":
		s.vp.ZoomOut()
	case "reset_zoom":
		s.vp.ResetZoom()
	case "goto_page":
		s.vp.GoToPage(ev.Page)
	case "next_page":
		s.vp.GoToNextPage()
	case "prev_page":
		s.vp.GoToPreviousPage()
	case "set_origin":
		s.vp.SetOrigin(ev.point())
	case "select_tool":
		return nil, c.SelectTool(ev.Tool)
	case "submit_comment":
		_, err := c.SubmitComment(ev.Text)
		return nil, err
	case "signature_captured":
		_, err := c.CompleteSignatureCapture(ev.ImageData)
		return nil, err
	case "signature_cancelled":
		c.CancelSignatureCapture()
	case "click":
		return c.Click(ev.point())
	case "pointer_down":
		_, err := c.PointerDown(ev.point())
		return nil, err
	case "pointer_move":
		c.PointerMove(ev.point())
	case "pointer_up":
		return nil, c.PointerUp(ev.point())
	case "double_click":
		_, err := c.DoubleClick(ev.point())
		return nil, err
	case "edit_draft":
		return nil, c.EditDraft(ev.Text)
	case "toggle_italic":
		return nil, c.ToggleItalic()
	case "rotate_comment":
		return nil, c.RotateComment()
	case "key":
		return nil, c.Key(ev.Key, ev.Shift)
	case "delete_comment":
		return nil, c.DeleteComment()
	case "delete_annotation":
		return nil, c.DeleteAnnotation(ev.ID)
	case "delete_signature":
		return nil, c.DeleteSignature(ev.ID)
	default:
		return nil, fmt.Errorf("unknown event type %q: %w", ev.Type, apperr.ErrInvalid)
	}
	s.resize()
	return nil, nil
}

// resize keeps the controller's surface size in step with page and zoom.
func (s *Session) resize() {
	if s.loaded.Kind != KindPDF || s.vp.CurrentPage < 1 {
		return
	}
	w, h, err := PageSize(s.loaded.PDF, s.vp.CurrentPage, s.vp.Scale)
	if err != nil {
		s.logger.Warn("Failed to size page", zap.Int("page", s.vp.CurrentPage), zap.Error(err))
		return
	}
	s.ctrl.SetSurface(w, h)
}

func (s *Session) snapshot(placement *Placement) Snapshot {
	snap := Snapshot{
		SessionID:  s.ID,
		DocumentID: s.DocumentID,
		Kind:       s.loaded.Kind,
		State:      StateIdle,
	}
	if s.loaded.Kind != KindPDF {
		snap.HTML = s.loaded.HTML
		return snap
	}

	vp := *s.vp
	snap.Viewport = &vp
	snap.State = s.ctrl.State()
	snap.Tool = s.ctrl.Tool()
	snap.Capturing = s.ctrl.Capturing()
	snap.Placement = placement

	if a, ok := s.ctrl.PendingAnnotation(); ok {
		snap.Pending = &PendingView{Annotation: &a}
	}
	if sig, ok := s.ctrl.PendingSignature(); ok {
		if snap.Pending == nil {
			snap.Pending = &PendingView{}
		}
		snap.Pending.Signature = &sig
	}
	if id := s.ctrl.EditingID(); id != "" {
		snap.Editing = &EditingView{ID: id, Draft: s.ctrl.Draft()}
	}

	layer := s.ctrl.Layer()
	snap.Surface = &SurfaceSize{Width: layer.Width, Height: layer.Height}
	snap.Layer = &layer
	return snap
}

// PagePNG renders the current page with its overlay painted on.
func (s *Session) PagePNG() ([]byte, error) {
	s.mu.Lock()
	if s.loaded.Kind != KindPDF {
		s.mu.Unlock()
		return nil, ErrNoOverlay
	}
	page, scale := s.vp.CurrentPage, s.vp.Scale
	layer := s.ctrl.Layer()
	s.mu.Unlock()

	surface, err := s.renderer.RenderPage(s.loaded.PDF, page, scale)
	if err != nil {
		return nil, err
	}
	Paint(surface.Image, layer)

	var buf bytes.Buffer
	if err := png.Encode(&buf, surface.Image); err != nil {
		return nil, fmt.Errorf("failed to encode page: %w", err)
	}
	return buf.Bytes(), nil
}

// Subscribe delivers snapshots after each applied event. Slow subscribers
// only see the latest one.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) publish(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Flush waits for pending saves.
func (s *Session) Flush(ctx context.Context) error {
	if s.sink == nil {
		return nil
	}
	return s.sink.Flush(ctx)
}

// Close drains pending saves and ends all subscriptions.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	if s.sink == nil {
		return nil
	}
	return s.sink.Close(ctx)
}

// lockedContext serialises tool-panel calls with event handling.
type lockedContext struct{ s *Session }

func (l lockedContext) ArmPendingAnnotation(tpl models.Annotation) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.ctrl.ArmPendingAnnotation(tpl)
}

func (l lockedContext) ArmPendingSignature(imageData string) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.ctrl.ArmPendingSignature(imageData)
}

func (l lockedContext) ClearPending() {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.ctrl.ClearPending()
}

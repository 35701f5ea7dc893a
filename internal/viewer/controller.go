package viewer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/signature"
)

type State string

const (
	StateIdle             State = "idle"
	StateToolSelected     State = "tool_selected"
	StatePendingPlacement State = "pending_placement"
	StateDragging         State = "dragging"
	StateEditingComment   State = "editing_comment"
)

type Tool string

const (
	ToolNone      Tool = ""
	ToolComment   Tool = "comment"
	ToolHighlight Tool = "highlight"
	ToolPen       Tool = "pen"
	ToolSign      Tool = "sign"
)

var (
	ErrBusy              = errors.New("a drag is in progress")
	ErrInvalidTransition = errors.New("action not allowed in the current state")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrUnknownEntity     = errors.New("no annotation or signature with that id")
)

// IDSource hands out entity ids. They must be unique within a session.
type IDSource interface {
	NewID() string
}

type ulidSource struct{}

func (ulidSource) NewID() string { return ulid.Make().String() }

// Sink receives the full collection after every committed mutation.
type Sink interface {
	SaveAnnotations(anns []models.Annotation)
	SaveSignatures(sigs []models.Signature, immediate bool)
}

// SessionContext is the handle a tool panel uses to arm placements.
type SessionContext interface {
	ArmPendingAnnotation(tpl models.Annotation) error
	ArmPendingSignature(imageData string) (bool, error)
	ClearPending()
}

type dragContext struct {
	id        string
	signature bool
	resize    bool
	initial   Point
	initialW  float64
	scale     float64
	start     Point
	current   Point
}

// Controller owns the interaction state of one viewing session. It is not
// safe for concurrent use; Session serialises access.
type Controller struct {
	vp   *Viewport
	anns []models.Annotation
	sigs []models.Signature

	surfaceW, surfaceH int

	tool       Tool
	capturing  bool
	pendingAnn *models.Annotation
	pendingSig *models.Signature
	drag       *dragContext
	editingID  string
	draft      string

	ids  IDSource
	sink Sink
}

var _ SessionContext = (*Controller)(nil)

func NewController(vp *Viewport, anns []models.Annotation, sigs []models.Signature, sink Sink, ids IDSource) *Controller {
	if ids == nil {
		ids = ulidSource{}
	}
	if anns == nil {
		anns = []models.Annotation{}
	}
	if sigs == nil {
		sigs = []models.Signature{}
	}
	return &Controller{vp: vp, anns: anns, sigs: sigs, sink: sink, ids: ids}
}

// State derives the machine state. Only one of dragging, editing and pending
// placement is reported; an armed placement outlives drags and edits.
func (c *Controller) State() State {
	switch {
	case c.drag != nil:
		return StateDragging
	case c.editingID != "":
		return StateEditingComment
	case c.pendingAnn != nil || c.pendingSig != nil:
		return StatePendingPlacement
	case c.tool != ToolNone:
		return StateToolSelected
	}
	return StateIdle
}

func (c *Controller) Tool() Tool        { return c.tool }
func (c *Controller) Capturing() bool   { return c.capturing }
func (c *Controller) EditingID() string { return c.editingID }
func (c *Controller) Draft() string     { return c.draft }

func (c *Controller) Annotations() []models.Annotation {
	return append([]models.Annotation(nil), c.anns...)
}

func (c *Controller) Signatures() []models.Signature {
	return append([]models.Signature(nil), c.sigs...)
}

// PendingAnnotation returns the armed annotation template, if any.
func (c *Controller) PendingAnnotation() (models.Annotation, bool) {
	if c.pendingAnn == nil {
		return models.Annotation{}, false
	}
	return *c.pendingAnn, true
}

// PendingSignature returns the armed signature template, if any.
func (c *Controller) PendingSignature() (models.Signature, bool) {
	if c.pendingSig == nil {
		return models.Signature{}, false
	}
	return *c.pendingSig, true
}

// SetSurface records the size of the rendered page surface.
func (c *Controller) SetSurface(width, height int) {
	c.surfaceW, c.surfaceH = width, height
}

// Layer composes the overlay for the current page, including any drag in
// flight.
func (c *Controller) Layer() Layer {
	var tr *transient
	if c.drag != nil {
		tr = &transient{id: c.drag.id, offset: c.drag.current.Sub(c.drag.start), resize: c.drag.resize}
		if tr.resize {
			tr.offset.Y = 0
		}
	}
	return Compose(c.vp, c.surfaceW, c.surfaceH, c.anns, c.sigs, c.editingID, tr)
}

// SelectTool picks a tool from the panel. Picking the active tool again
// deselects it and drops anything armed.
func (c *Controller) SelectTool(t Tool) error {
	if c.drag != nil {
		return ErrBusy
	}
	switch t {
	case ToolComment, ToolHighlight, ToolPen, ToolSign:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTool, t)
	}
	c.cancelEdit()
	c.pendingAnn, c.pendingSig = nil, nil
	c.capturing = false

	if t == c.tool {
		c.tool = ToolNone
		return nil
	}
	c.tool = t

	switch t {
	case ToolHighlight:
		c.pendingAnn = &models.Annotation{Type: models.AnnotationHighlight}
	case ToolPen:
		c.pendingAnn = &models.Annotation{Type: models.AnnotationUnderline}
	case ToolSign:
		c.capturing = true
	}
	return nil
}

// SubmitComment arms a comment placement. Blank text arms nothing and
// reports false.
func (c *Controller) SubmitComment(text string) (bool, error) {
	if c.tool != ToolComment || c.drag != nil {
		return false, ErrInvalidTransition
	}
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	c.pendingAnn = &models.Annotation{Type: models.AnnotationComment, Content: text}
	return true, nil
}

// CompleteSignatureCapture ends the capture flow with an image. An empty
// image leaves the flow open and arms nothing, as does one that is not a
// decodable image data URL.
func (c *Controller) CompleteSignatureCapture(imageData string) (bool, error) {
	if !c.capturing {
		return false, ErrInvalidTransition
	}
	armed, err := c.ArmPendingSignature(imageData)
	if armed {
		c.capturing = false
	}
	return armed, err
}

// CancelSignatureCapture closes the capture flow without arming.
func (c *Controller) CancelSignatureCapture() {
	if !c.capturing {
		return
	}
	c.capturing = false
	c.tool = ToolNone
}

func (c *Controller) ArmPendingAnnotation(tpl models.Annotation) error {
	if !tpl.Type.Valid() {
		return fmt.Errorf("%w: annotation type %q", ErrUnknownTool, tpl.Type)
	}
	if tpl.Type == models.AnnotationComment && strings.TrimSpace(tpl.Content) == "" {
		return fmt.Errorf("%w: comment text is empty", ErrInvalidTransition)
	}
	t := tpl
	c.pendingAnn = &t
	return nil
}

func (c *Controller) ArmPendingSignature(imageData string) (bool, error) {
	if imageData == "" {
		return false, nil
	}
	if err := signature.Validate(imageData); err != nil {
		return false, err
	}
	c.pendingSig = &models.Signature{ImageData: imageData, Width: SignatureWidth, Height: SignatureHeight}
	return true, nil
}

func (c *Controller) ClearPending() {
	c.pendingAnn, c.pendingSig = nil, nil
}

// Placement reports what a click created.
type Placement struct {
	Annotation *models.Annotation `json:"annotation,omitempty"`
	Signature  *models.Signature  `json:"signature,omitempty"`
}

// Click handles a click on the page. With a template armed, a click on the
// page background places it; clicks on existing overlays never place. A
// pending signature takes priority over a pending annotation.
func (c *Controller) Click(screen Point) (*Placement, error) {
	if c.drag != nil {
		return nil, ErrBusy
	}
	if c.pendingSig == nil && c.pendingAnn == nil {
		return nil, nil
	}
	local := c.vp.ToPageLocal(screen)
	if !c.onSurface(local) {
		return nil, nil
	}
	if _, hit := c.Layer().HitTest(local); hit {
		return nil, nil
	}

	if c.pendingSig != nil {
		sig := *c.pendingSig
		sig.ID = c.ids.NewID()
		sig.X, sig.Y = local.X, local.Y
		sig.Page = c.vp.CurrentPage
		sig.Scale = c.vp.Scale
		c.sigs = append(c.sigs, sig)
		c.pendingSig = nil
		c.tool = ToolNone
		c.saveSignatures(true)
		return &Placement{Signature: &sig}, nil
	}

	ann := *c.pendingAnn
	ann.ID = c.ids.NewID()
	ann.X, ann.Y = local.X, local.Y
	ann.Page = c.vp.CurrentPage
	ann.Scale = c.vp.Scale
	switch ann.Type {
	case models.AnnotationHighlight:
		ann.Color = orColor(ann.Color, DefaultHighlight)
		ann.Width = orDefault(ann.Width, HighlightWidth)
		ann.Height = orDefault(ann.Height, HighlightHeight)
	case models.AnnotationUnderline:
		ann.Color = orColor(ann.Color, DefaultUnderline)
		ann.Width = orDefault(ann.Width, UnderlineWidth)
		ann.Height = orDefault(ann.Height, UnderlineHeight)
	case models.AnnotationPen:
		ann.Color = orColor(ann.Color, DefaultPenColor)
	}
	c.anns = append(c.anns, ann)
	c.pendingAnn = nil
	c.tool = ToolNone
	c.saveAnnotations()
	return &Placement{Annotation: &ann}, nil
}

func (c *Controller) onSurface(p Point) bool {
	if c.vp.CurrentPage < 1 {
		return false
	}
	if c.surfaceW == 0 && c.surfaceH == 0 {
		return p.X >= 0 && p.Y >= 0
	}
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(c.surfaceW) && p.Y <= float64(c.surfaceH)
}

// PointerDown starts a move, or a resize when it lands on a comment's
// handle. It reports whether a drag started.
func (c *Controller) PointerDown(screen Point) (bool, error) {
	if c.drag != nil {
		return false, ErrBusy
	}
	hit, ok := c.Layer().HitTest(c.vp.ToPageLocal(screen))
	if !ok {
		return false, nil
	}
	if c.editingID != "" && c.editingID != hit.Element.ID {
		c.cancelEdit()
	}
	if c.editingID == hit.Element.ID {
		// the pointer is in the edit box
		return false, nil
	}

	d := &dragContext{id: hit.Element.ID, start: screen, current: screen}
	if hit.Element.Signature {
		i := c.signatureIndex(d.id)
		if i < 0 {
			return false, ErrUnknownEntity
		}
		s := c.sigs[i]
		d.signature = true
		d.initial = Point{X: s.X, Y: s.Y}
		d.scale = s.Scale
	} else {
		i := c.annotationIndex(d.id)
		if i < 0 {
			return false, ErrUnknownEntity
		}
		a := c.anns[i]
		d.initial = Point{X: a.X, Y: a.Y}
		d.scale = a.Scale
		if hit.ResizeHandle && a.Type == models.AnnotationComment {
			d.resize = true
			d.initialW = orDefault(a.Width, CommentMaxWidth)
		}
	}
	c.drag = d
	return true, nil
}

// PointerMove tracks the drag for display only.
func (c *Controller) PointerMove(screen Point) {
	if c.drag == nil {
		return
	}
	c.drag.current = screen
}

// PointerUp commits the drag: position becomes initial plus the pointer
// delta, or, for a resize, width becomes max(20, initial width + dx).
func (c *Controller) PointerUp(screen Point) error {
	d := c.drag
	if d == nil {
		return nil
	}
	c.drag = nil

	dx := c.vp.unscale(screen.X-d.start.X, d.scale)
	dy := c.vp.unscale(screen.Y-d.start.Y, d.scale)

	if d.signature {
		i := c.signatureIndex(d.id)
		if i < 0 {
			return ErrUnknownEntity
		}
		c.sigs[i].X = d.initial.X + dx
		c.sigs[i].Y = d.initial.Y + dy
		c.saveSignatures(false)
		return nil
	}

	i := c.annotationIndex(d.id)
	if i < 0 {
		return ErrUnknownEntity
	}
	if d.resize {
		c.anns[i].Width = maxf(MinCommentWidth, d.initialW+dx)
	} else {
		c.anns[i].X = d.initial.X + dx
		c.anns[i].Y = d.initial.Y + dy
	}
	c.saveAnnotations()
	return nil
}

// DoubleClick opens inline editing on a comment.
func (c *Controller) DoubleClick(screen Point) (bool, error) {
	if c.drag != nil {
		return false, ErrBusy
	}
	hit, ok := c.Layer().HitTest(c.vp.ToPageLocal(screen))
	if !ok || hit.Element.Kind != ElementComment {
		return false, nil
	}
	i := c.annotationIndex(hit.Element.ID)
	if i < 0 {
		return false, ErrUnknownEntity
	}
	c.editingID = c.anns[i].ID
	c.draft = c.anns[i].Content
	return true, nil
}

func (c *Controller) EditDraft(text string) error {
	if c.editingID == "" {
		return ErrInvalidTransition
	}
	c.draft = text
	return nil
}

func (c *Controller) ToggleItalic() error {
	i, err := c.editingIndex()
	if err != nil {
		return err
	}
	if c.anns[i].FontStyle == models.FontItalic {
		c.anns[i].FontStyle = models.FontNormal
	} else {
		c.anns[i].FontStyle = models.FontItalic
	}
	c.saveAnnotations()
	return nil
}

// RotateComment steps the rotation by 45 degrees through 0, 45, 90, -45.
func (c *Controller) RotateComment() error {
	i, err := c.editingIndex()
	if err != nil {
		return err
	}
	next := c.anns[i].Rotation + 45
	if next > 90 {
		next = -45
	}
	c.anns[i].Rotation = next
	c.saveAnnotations()
	return nil
}

// Key handles a key press. While editing, Enter without shift commits the
// draft and Escape discards it. Outside editing, Escape drops any armed
// placement.
func (c *Controller) Key(key string, shift bool) error {
	if c.editingID == "" {
		if key == "Escape" && c.drag == nil {
			c.ClearPending()
			if !c.capturing {
				c.tool = ToolNone
			}
		}
		return nil
	}
	switch {
	case key == "Enter" && !shift:
		i, err := c.editingIndex()
		if err != nil {
			return err
		}
		c.anns[i].Content = c.draft
		c.cancelEdit()
		c.saveAnnotations()
	case key == "Escape":
		c.cancelEdit()
	}
	return nil
}

// DeleteComment removes the comment being edited.
func (c *Controller) DeleteComment() error {
	if c.editingID == "" {
		return ErrInvalidTransition
	}
	return c.DeleteAnnotation(c.editingID)
}

func (c *Controller) DeleteAnnotation(id string) error {
	if c.drag != nil {
		return ErrBusy
	}
	i := c.annotationIndex(id)
	if i < 0 {
		return ErrUnknownEntity
	}
	c.anns = append(c.anns[:i:i], c.anns[i+1:]...)
	if c.editingID == id {
		c.cancelEdit()
	}
	c.saveAnnotations()
	return nil
}

func (c *Controller) DeleteSignature(id string) error {
	if c.drag != nil {
		return ErrBusy
	}
	i := c.signatureIndex(id)
	if i < 0 {
		return ErrUnknownEntity
	}
	c.sigs = append(c.sigs[:i:i], c.sigs[i+1:]...)
	c.saveSignatures(false)
	return nil
}

func (c *Controller) cancelEdit() {
	c.editingID = ""
	c.draft = ""
}

func (c *Controller) editingIndex() (int, error) {
	if c.editingID == "" {
		return -1, ErrInvalidTransition
	}
	i := c.annotationIndex(c.editingID)
	if i < 0 {
		c.cancelEdit()
		return -1, ErrUnknownEntity
	}
	return i, nil
}

func (c *Controller) annotationIndex(id string) int {
	for i := range c.anns {
		if c.anns[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) signatureIndex(id string) int {
	for i := range c.sigs {
		if c.sigs[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) saveAnnotations() {
	if c.sink != nil {
		c.sink.SaveAnnotations(c.Annotations())
	}
}

func (c *Controller) saveSignatures(immediate bool) {
	if c.sink != nil {
		c.sink.SaveSignatures(c.Signatures(), immediate)
	}
}

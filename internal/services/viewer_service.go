package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/internal/viewer"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

// DocumentLoader fetches and prepares a document for viewing.
type DocumentLoader interface {
	Load(ctx context.Context, url, contentTypeHint string) (*viewer.Loaded, error)
}

type hostedSession struct {
	session *viewer.Session
	userID  string
}

type ViewerService struct {
	documents *DocumentService
	loader    DocumentLoader
	limits    viewer.ZoomLimits
	renderer  *viewer.Renderer
	ttl       time.Duration
	logger    *zap.Logger
	metrics   *metrics.MetricsCollector

	mu       sync.RWMutex
	sessions map[string]*hostedSession
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewViewerService(documents *DocumentService, loader DocumentLoader, cfg config.ViewerConfig, logger *zap.Logger, metrics *metrics.MetricsCollector) *ViewerService {
	vs := &ViewerService{
		documents: documents,
		loader:    loader,
		limits: viewer.ZoomLimits{
			Min:     cfg.MinScale,
			Max:     cfg.MaxScale,
			Step:    cfg.ZoomStep,
			Default: cfg.DefaultScale,
		},
		renderer: viewer.NewRenderer(metrics),
		ttl:      cfg.SessionTTL,
		logger:   logger.With(zap.String("service", "viewer_service")),
		metrics:  metrics,
		sessions: make(map[string]*hostedSession),
		stopChan: make(chan struct{}),
	}
	if vs.limits.Default == 0 {
		vs.limits = viewer.DefaultZoomLimits()
	}
	if vs.ttl > 0 {
		go vs.startIdleCleanup(vs.ttl / 4)
	}
	return vs
}

// OpenSession loads a document the user owns and hosts a viewer session
// for it. Edits flow back to the document store through a bridge.
func (vs *ViewerService) OpenSession(ctx context.Context, userID, docID string) (*viewer.Session, error) {
	doc, err := vs.documents.GetDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	url := doc.URL
	if url == "" {
		url = doc.OriginalURL
	}
	if url == "" {
		return nil, apperr.New(apperr.KindNotFound, "This document has no file attached.", apperr.ErrNotFound)
	}

	loaded, err := vs.loader.Load(WithUser(ctx, userID), url, doc.ContentType)
	if err != nil {
		vs.logger.Warn("Failed to load document", zap.String("doc_id", docID), zap.Error(err))
		return nil, err
	}

	id := ulid.Make().String()
	logger := vs.logger.With(zap.String("session_id", id))
	var bridge *viewer.Bridge
	if loaded.Kind == viewer.KindPDF {
		bridge = viewer.NewBridge(doc.ID, vs.documents, logger, vs.metrics, viewer.BridgeOptions{})
	}
	opts := viewer.SessionOptions{
		Limits:   vs.limits,
		Renderer: vs.renderer,
		Logger:   vs.logger,
	}
	if bridge != nil {
		opts.Sink = bridge
	}

	session, err := viewer.NewSession(id, doc, loaded, opts)
	if err != nil {
		if bridge != nil {
			_ = bridge.Close(ctx)
		}
		return nil, err
	}

	vs.mu.Lock()
	vs.sessions[id] = &hostedSession{session: session, userID: userID}
	vs.mu.Unlock()

	vs.metrics.IncrementCounter("viewer.sessions_opened", map[string]string{"kind": string(loaded.Kind)})
	vs.logger.Info("Viewer session opened", zap.String("session_id", id), zap.String("doc_id", docID), zap.String("kind", string(loaded.Kind)))
	return session, nil
}

// Session returns an open session owned by userID.
func (vs *ViewerService) Session(userID, id string) (*viewer.Session, error) {
	vs.mu.RLock()
	hosted, ok := vs.sessions[id]
	vs.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "Viewer session not found.", apperr.ErrNotFound)
	}
	if hosted.userID != userID {
		return nil, apperr.New(apperr.KindAuthorization, "You do not have access to this session.", apperr.ErrPermissionDenied)
	}
	return hosted.session, nil
}

// CloseSession drains the session's pending saves and forgets it.
func (vs *ViewerService) CloseSession(ctx context.Context, userID, id string) error {
	session, err := vs.Session(userID, id)
	if err != nil {
		return err
	}
	vs.mu.Lock()
	delete(vs.sessions, id)
	vs.mu.Unlock()
	return session.Close(ctx)
}

func (vs *ViewerService) startIdleCleanup(every time.Duration) {
	if every < time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-vs.stopChan:
			return
		case <-ticker.C:
			vs.closeIdle(time.Now())
		}
	}
}

// closeIdle closes sessions with no events for longer than the TTL.
func (vs *ViewerService) closeIdle(now time.Time) int {
	var idle []*viewer.Session
	vs.mu.Lock()
	for id, hosted := range vs.sessions {
		if now.Sub(hosted.session.LastActive()) > vs.ttl {
			idle = append(idle, hosted.session)
			delete(vs.sessions, id)
		}
	}
	vs.mu.Unlock()

	for _, s := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.Close(ctx); err != nil {
			vs.logger.Warn("Failed to close idle session", zap.String("session_id", s.ID), zap.Error(err))
		}
		cancel()
	}
	return len(idle)
}

// Shutdown closes every session, flushing their saves.
func (vs *ViewerService) Shutdown(ctx context.Context) error {
	vs.stopOnce.Do(func() { close(vs.stopChan) })

	vs.mu.Lock()
	all := make([]*viewer.Session, 0, len(vs.sessions))
	for id, hosted := range vs.sessions {
		all = append(all, hosted.session)
		delete(vs.sessions, id)
	}
	vs.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

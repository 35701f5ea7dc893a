package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/services"
	"github.com/Essu-man/Minuty/internal/viewer"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10

	// wsMaxMessageBytes fits one event carrying a signature data URL.
	wsMaxMessageBytes = 4 << 20
)

type SessionHandler struct {
	viewerService *services.ViewerService
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

type openSessionRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
}

type eventResponse struct {
	Snapshot viewer.Snapshot `json:"snapshot"`
	Error    string          `json:"error,omitempty"`
}

// wsMessage is one frame sent to a websocket client.
type wsMessage struct {
	Type     string           `json:"type"`
	Snapshot *viewer.Snapshot `json:"snapshot,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func NewSessionHandler(viewerService *services.ViewerService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		viewerService: viewerService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger.With(zap.String("handler", "sessions")),
	}
}

func (sh *SessionHandler) OpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, err, "documentId is required")
		return
	}
	session, err := sh.viewerService.OpenSession(c.Request.Context(), currentUserID(c), req.DocumentID)
	if err != nil {
		respondError(c, sh.logger, err)
		return
	}
	c.JSON(http.StatusCreated, session.Snapshot())
}

func (sh *SessionHandler) session(c *gin.Context) (*viewer.Session, bool) {
	session, err := sh.viewerService.Session(currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, sh.logger, err)
		return nil, false
	}
	return session, true
}

func (sh *SessionHandler) GetSession(c *gin.Context) {
	session, ok := sh.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// ApplyEvent answers with the snapshot even when the event is rejected, so
// the client can resynchronise.
func (sh *SessionHandler) ApplyEvent(c *gin.Context) {
	session, ok := sh.session(c)
	if !ok {
		return
	}
	var ev viewer.Event
	if err := c.ShouldBindJSON(&ev); err != nil || ev.Type == "" {
		rejectBody(c, err, "An event type is required")
		return
	}

	snap, err := session.ApplyEvent(ev)
	if err != nil {
		status := statusFor(err)
		c.JSON(status, eventResponse{Snapshot: snap, Error: messageFor(err, status)})
		return
	}
	c.JSON(http.StatusOK, eventResponse{Snapshot: snap})
}

func (sh *SessionHandler) PagePNG(c *gin.Context) {
	session, ok := sh.session(c)
	if !ok {
		return
	}
	raw, err := session.PagePNG()
	if err != nil {
		respondError(c, sh.logger, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", raw)
}

func (sh *SessionHandler) CloseSession(c *gin.Context) {
	if err := sh.viewerService.CloseSession(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, sh.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stream upgrades to a websocket. Events read from the client are applied
// to the session; every resulting snapshot is pushed back, including those
// caused by other connections to the same session.
func (sh *SessionHandler) Stream(c *gin.Context) {
	session, ok := sh.session(c)
	if !ok {
		return
	}
	conn, err := sh.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sh.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := sh.logger.With(zap.String("session_id", session.ID))
	updates, cancel := session.Subscribe()
	defer cancel()

	var writeMu sync.Mutex
	send := func(msg wsMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(msg)
	}
	ping := func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
	}

	initial := session.Snapshot()
	if err := send(wsMessage{Type: "snapshot", Snapshot: &initial}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case snap, open := <-updates:
				if !open {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
						time.Now().Add(wsWriteWait))
					conn.Close()
					return
				}
				if err := send(wsMessage{Type: "snapshot", Snapshot: &snap}); err != nil {
					return
				}
			case <-ticker.C:
				if err := ping(); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(wsMaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var ev viewer.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Websocket closed", zap.Error(err))
			}
			break
		}
		if _, err := session.ApplyEvent(ev); err != nil {
			snap := session.Snapshot()
			if send(wsMessage{Type: "error", Snapshot: &snap, Error: messageFor(err, statusFor(err))}) != nil {
				break
			}
		}
	}
	cancel()
	<-done
}

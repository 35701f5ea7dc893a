package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestID returns the id ProcessRequest attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LimitBody caps request bodies at n bytes. Routes listed in larger get
// their own cap, keyed by gin's full route path.
func LimitBody(n int64, larger map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := n
		if l, ok := larger[c.FullPath()]; ok {
			limit = l
		}
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

type IPAttemptTracker struct {
	attempts     map[string]*IPAttemptInfo
	mu           sync.RWMutex
	window       time.Duration
	limit        int
	cleanupEvery time.Duration
	stopChan     chan struct{}
	stopOnce     sync.Once
}

type IPAttemptInfo struct {
	Count       int
	LastAttempt time.Time
	Blocked     bool
}

func NewIPAttemptTracker(limit int, window time.Duration) *IPAttemptTracker {
	tracker := &IPAttemptTracker{
		attempts:     make(map[string]*IPAttemptInfo),
		window:       window,
		limit:        limit,
		cleanupEvery: 5 * time.Minute,
		stopChan:     make(chan struct{}),
	}

	go tracker.startCleanup()

	return tracker
}

func (t *IPAttemptTracker) startCleanup() {
	ticker := time.NewTicker(t.cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.cleanOldEntries(time.Now())
		}
	}
}

func (t *IPAttemptTracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}

func (t *IPAttemptTracker) cleanOldEntries(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry := now.Add(-t.window)
	for ip, info := range t.attempts {
		if info.LastAttempt.Before(expiry) {
			delete(t.attempts, ip)
		}
	}
}

func (t *IPAttemptTracker) RecordAttempt(ip string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, exists := t.attempts[ip]
	if !exists || now.Sub(info.LastAttempt) > t.window {
		info = &IPAttemptInfo{}
		t.attempts[ip] = info
	}

	info.Count++
	info.LastAttempt = now

	if info.Count > t.limit {
		info.Blocked = true
	}
}

func (t *IPAttemptTracker) IsBlocked(ip string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, exists := t.attempts[ip]
	if !exists {
		return false
	}

	return info.Blocked
}

type RequestMiddleware struct {
	logger         *zap.Logger
	attemptTracker *IPAttemptTracker
}

func NewRequestMiddleware(logger *zap.Logger) *RequestMiddleware {
	return &RequestMiddleware{
		logger:         logger,
		attemptTracker: NewIPAttemptTracker(5, 30*time.Second),
	}
}

func (rm *RequestMiddleware) Stop() {
	rm.attemptTracker.Stop()
}

func (rm *RequestMiddleware) ProcessRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := context.WithValue(c.Request.Context(), requestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// SignInThrottle answers 429 once an address has made too many sign-in
// attempts inside the window.
func (rm *RequestMiddleware) SignInThrottle() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		rm.attemptTracker.RecordAttempt(clientIP, time.Now())
		if rm.attemptTracker.IsBlocked(clientIP) {
			rm.logger.Warn("Too many sign-in attempts",
				zap.String("client_ip", clientIP),
				zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many sign-in attempts. Try again shortly.",
			})
			return
		}
		c.Next()
	}
}

func (rm *RequestMiddleware) RecoverPanic() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				rm.logger.Error("Panic recovered",
					zap.String("request_id", RequestID(c.Request.Context())),
					zap.Any("error", err),
					zap.Stack("stack"))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

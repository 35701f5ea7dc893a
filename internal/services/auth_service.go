package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/apperr"
	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/internal/db"
	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/utils"
	"github.com/Essu-man/Minuty/internal/validate"
	"github.com/Essu-man/Minuty/pkg/metrics"
)

var (
	ErrInvalidSession     = errors.New("invalid session token")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type SessionStore struct {
	sessions map[string]SessionData
	mutex    sync.RWMutex
}

type SessionData struct {
	UserID    string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
}

type AuthService struct {
	users        UserStore
	sessionStore *SessionStore
	security     config.SecurityConfig
	logger       *zap.Logger
	metrics      *metrics.MetricsCollector
	stopChan     chan struct{}
	stopOnce     sync.Once
	now          func() time.Time
}

func NewAuthService(users UserStore, security config.SecurityConfig, logger *zap.Logger, metricsCollector *metrics.MetricsCollector) *AuthService {
	as := &AuthService{
		users: users,
		sessionStore: &SessionStore{
			sessions: make(map[string]SessionData),
		},
		security: security,
		logger:   logger.With(zap.String("service", "auth_service")),
		metrics:  metricsCollector,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}

	go as.startBackgroundCleanup(15 * time.Minute)

	return as
}

func (as *AuthService) startBackgroundCleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-as.stopChan:
			return
		case <-ticker.C:
			as.cleanupExpiredSessions()
		}
	}
}

func (as *AuthService) cleanupExpiredSessions() {
	as.sessionStore.mutex.Lock()
	defer as.sessionStore.mutex.Unlock()

	now := as.now()
	for token, session := range as.sessionStore.sessions {
		if now.After(session.ExpiresAt) {
			delete(as.sessionStore.sessions, token)
			as.metrics.IncrementCounter("auth.sessions_expired", nil)
		}
	}
}

// Stop ends the cleanup loop.
func (as *AuthService) Stop() {
	as.stopOnce.Do(func() { close(as.stopChan) })
}

// SignUp registers a new account and opens a session for it.
func (as *AuthService) SignUp(ctx context.Context, email, password, displayName, ipAddress, userAgent string) (*models.User, string, error) {
	email = utils.NormalizeEmail(email)
	if err := validate.Email(email); err != nil {
		return nil, "", err
	}
	if err := validate.Password(as.security, password); err != nil {
		return nil, "", err
	}

	hash, err := utils.EncryptPassword(password)
	if err != nil {
		return nil, "", err
	}
	now := as.now()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		ActiveStatus: true,
		LastLogin:    now,
	}
	if err := as.users.Create(ctx, user); err != nil {
		if errors.Is(err, db.ErrEmailTaken) {
			return nil, "", apperr.New(apperr.KindInvalid, "An account with this email already exists.", err)
		}
		return nil, "", err
	}

	as.logger.Info("User registered", zap.String("user_id", user.ID))
	token := as.createSessionToken(user.ID, ipAddress, userAgent)
	return user, token, nil
}

func (as *AuthService) SignIn(ctx context.Context, email, password, ipAddress, userAgent string) (*models.User, string, error) {
	user, err := as.users.GetByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		if apperr.Classify(err) == apperr.KindNotFound {
			return nil, "", as.invalidCredentials()
		}
		return nil, "", err
	}
	if !user.ActiveStatus {
		return nil, "", as.invalidCredentials()
	}
	if ok, _ := utils.VerifyPassword(user.PasswordHash, password); !ok {
		return nil, "", as.invalidCredentials()
	}

	if err := as.users.TouchLogin(ctx, user.ID, as.now()); err != nil {
		as.logger.Warn("Failed to record login", zap.String("user_id", user.ID), zap.Error(err))
	}
	token := as.createSessionToken(user.ID, ipAddress, userAgent)
	return user, token, nil
}

func (as *AuthService) invalidCredentials() error {
	as.metrics.IncrementCounter("auth.signin_failed", nil)
	return apperr.New(apperr.KindAuthorization, "Invalid email or password.", errors.Join(apperr.ErrUnauthenticated, ErrInvalidCredentials))
}

func (as *AuthService) Logout(token string) {
	as.sessionStore.mutex.Lock()
	delete(as.sessionStore.sessions, token)
	as.sessionStore.mutex.Unlock()
}

func (as *AuthService) createSessionToken(userID, ipAddress, userAgent string) string {
	token := uuid.New().String()
	as.sessionStore.mutex.Lock()
	as.sessionStore.sessions[token] = SessionData{
		UserID:    userID,
		ExpiresAt: as.now().Add(as.security.SessionTimeout),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	as.sessionStore.mutex.Unlock()

	as.logger.Info("Created new session",
		zap.String("user_id", userID),
		zap.String("token", utils.TokenPrefix(token)),
		zap.String("ip_address", ipAddress),
	)
	return token
}

func (as *AuthService) getSessionData(token string) (SessionData, error) {
	as.sessionStore.mutex.RLock()
	sd, exists := as.sessionStore.sessions[token]
	as.sessionStore.mutex.RUnlock()
	if !exists || as.now().After(sd.ExpiresAt) {
		return SessionData{}, ErrInvalidSession
	}
	return sd, nil
}

func (as *AuthService) IsValidSession(token string) (string, bool) {
	sd, err := as.getSessionData(token)
	if err != nil {
		return "", false
	}
	return sd.UserID, true
}

// CurrentUser resolves the account behind a session token.
func (as *AuthService) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	userID, ok := as.IsValidSession(token)
	if !ok {
		return nil, apperr.New(apperr.KindAuthorization, "", errors.Join(apperr.ErrUnauthenticated, ErrInvalidSession))
	}
	return as.users.GetByID(ctx, userID)
}

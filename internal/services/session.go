package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"xui-shop-core/internal/cache"
	"xui-shop-core/internal/config"
	"xui-shop-core/internal/constants"
	apperrors "xui-shop-core/internal/errors"
	"xui-shop-core/internal/models"
)

// Authenticator performs a panel login
type Authenticator interface {
	Login(ctx context.Context) (*models.Session, error)
}

// SessionManager caches the panel session and backs off after failed logins
type SessionManager struct {
	auth     Authenticator
	cache    cache.Cache[models.Session]
	maxAge   time.Duration
	cooldown time.Duration
	now      func() time.Time
	logger   *logrus.Logger

	mu       sync.Mutex
	failedAt time.Time
}

// NewSessionManager creates a new session manager
func NewSessionManager(auth Authenticator, c cache.Cache[models.Session], login config.LoginConfig, logger *logrus.Logger) *SessionManager {
	return &SessionManager{
		auth:     auth,
		cache:    c,
		maxAge:   login.SessionMaxAge,
		cooldown: login.Cooldown,
		now:      time.Now,
		logger:   logger,
	}
}

// Session returns a session no older than the configured max age
func (m *SessionManager) Session(ctx context.Context) (*models.Session, error) {
	return m.SessionWithMaxAge(ctx, m.maxAge)
}

// SessionWithMaxAge returns a cached session younger than maxAge or logs in.
// While the failure cooldown is active it returns ErrSessionUnavailable without I/O.
func (m *SessionManager) SessionWithMaxAge(ctx context.Context, maxAge time.Duration) (*models.Session, error) {
	now := m.now()

	if m.coolingDown(now) {
		m.logger.Debug("Panel login cooldown active, skipping login attempt")
		return nil, fmt.Errorf("%w: login cooldown active", apperrors.ErrSessionUnavailable)
	}

	entry, found, err := m.cache.Get(ctx, constants.SessionCacheKey)
	if err != nil {
		m.logger.Warnf("Failed to read cached session: %v", err)
	}
	if found && len(entry.Value.Cookies) > 0 && now.Sub(entry.Value.CreatedAt) < maxAge {
		session := entry.Value
		return &session, nil
	}

	session, err := m.auth.Login(ctx)
	if err != nil || session == nil {
		m.mu.Lock()
		m.failedAt = m.now()
		m.mu.Unlock()
		m.logger.Errorf("Panel login failed, cooling down for %s: %v", m.cooldown, err)
		if err == nil {
			return nil, apperrors.ErrSessionUnavailable
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionUnavailable, err)
	}

	session.CreatedAt = now
	if err := m.cache.Set(ctx, constants.SessionCacheKey, *session, maxAge); err != nil {
		m.logger.Warnf("Failed to cache session: %v", err)
	}

	m.mu.Lock()
	m.failedAt = time.Time{}
	m.mu.Unlock()

	return session, nil
}

// Invalidate drops the cached session, e.g. after the panel answered 401
func (m *SessionManager) Invalidate(ctx context.Context) {
	if err := m.cache.Delete(ctx, constants.SessionCacheKey); err != nil {
		m.logger.Warnf("Failed to drop cached session: %v", err)
	}
}

func (m *SessionManager) coolingDown(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.failedAt.IsZero() && now.Sub(m.failedAt) < m.cooldown
}

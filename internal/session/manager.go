package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skypro1111/voice-analyzer/internal/metrics"
)

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	Timeout         time.Duration // idle time after which a session expires
	CleanupInterval time.Duration
	MaxSessions     int // 0 means unlimited
}

// Manager keeps active sessions by ID and expires idle ones
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	config   ManagerConfig
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
	once    sync.Once
}

// NewManager creates a session manager and starts its cleanup routine. m may be nil.
func NewManager(config ManagerConfig, logger zerolog.Logger, m *metrics.Metrics) *Manager {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		config:   config,
		logger:   logger.With().Str("component", "sessions").Logger(),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// Create registers a new session for the given prompt
func (m *Manager) Create(prompt string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		m.metrics.RecordSessionRejected()
		m.logger.Warn().
			Int("active_sessions", len(m.sessions)).
			Int("max_sessions", m.config.MaxSessions).
			Msg("Session limit reached")
		return nil, ErrTooManySessions
	}

	s := New(prompt)
	m.sessions[s.ID] = s

	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(len(m.sessions))

	m.logger.Info().
		Str("sessionId", s.ID).
		Int("active_sessions", len(m.sessions)).
		Msg("Session created")

	return s, nil
}

// Get returns the session with the given ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove deletes a session. It reports whether the session existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	delete(m.sessions, id)
	m.metrics.SetActiveSessions(len(m.sessions))

	m.logger.Info().
		Str("sessionId", id).
		Dur("lifetime", time.Since(s.CreatedAt)).
		Int("active_sessions", len(m.sessions)).
		Msg("Session removed")

	return true
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns snapshots of every session, oldest first
func (m *Manager) All() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Stop stops the cleanup routine. Sessions stay readable.
func (m *Manager) Stop() {
	m.once.Do(func() {
		m.cancel()
		<-m.cleanup
		m.logger.Info().Int("remaining_sessions", m.Count()).Msg("Session manager stopped")
	})
}

// startCleanupRoutine runs in a separate goroutine to remove expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Debug().
		Dur("timeout", m.config.Timeout).
		Dur("check_interval", m.config.CleanupInterval).
		Msg("Session cleanup routine started")

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.cleanupExpired(now)
		}
	}
}

// cleanupExpired removes idle sessions. Sessions with a stage in flight are kept.
func (m *Manager) cleanupExpired(now time.Time) int {
	if m.config.Timeout <= 0 {
		return 0
	}

	var expired []string

	m.mu.RLock()
	for id, s := range m.sessions {
		if s.Busy() {
			continue
		}
		if now.Sub(s.LastActivity()) > m.config.Timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	m.logger.Info().Int("expired_count", len(expired)).Msg("Cleaning up expired sessions")

	removed := 0
	for _, id := range expired {
		if m.Remove(id) {
			m.metrics.RecordSessionExpired()
			removed++
		}
	}
	return removed
}

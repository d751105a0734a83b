package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chanrelay/chanrelay/internal/models"
)

// ManagerConfig configures session lifecycle and the fan-out buffer each
// session allocates.
type ManagerConfig struct {
	// IdleGracePeriod is how long a session with zero subscribers is
	// kept alive in case a client reconnects before it is torn down.
	IdleGracePeriod time.Duration
	// CleanupInterval is how often the manager sweeps for idle sessions.
	CleanupInterval time.Duration
	BufferConfig    BufferConfig
	HTTPClient      *http.Client
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		IdleGracePeriod: 2 * time.Second,
		CleanupInterval: 1 * time.Second,
		BufferConfig:    DefaultBufferConfig(),
		HTTPClient:      &http.Client{Timeout: 0},
	}
}

// Session is a single upstream relay in progress for one channel,
// fanning its bytes out to every subscribed client.
type Session struct {
	ChannelID      models.ChannelID
	StreamURL      string
	Classification ClassificationResult
	StartedAt      time.Time

	buf    *FanoutBuffer
	cancel context.CancelFunc

	idleSinceMu sync.Mutex
	idleSince   *time.Time
}

// Buffer returns the session's fan-out buffer.
func (s *Session) Buffer() *FanoutBuffer { return s.buf }

func (s *Session) markIdle() {
	s.idleSinceMu.Lock()
	defer s.idleSinceMu.Unlock()
	if s.idleSince == nil {
		now := time.Now()
		s.idleSince = &now
	}
}

func (s *Session) clearIdle() {
	s.idleSinceMu.Lock()
	defer s.idleSinceMu.Unlock()
	s.idleSince = nil
}

func (s *Session) idleFor(grace time.Duration) bool {
	s.idleSinceMu.Lock()
	defer s.idleSinceMu.Unlock()
	return s.idleSince != nil && time.Since(*s.idleSince) > grace
}

// Manager owns the set of active relay sessions, one per channel, and
// the classifier used to start new ones.
type Manager struct {
	config     ManagerConfig
	classifier *Classifier
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[models.ChannelID]*Session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a relay session manager.
func NewManager(config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		config:     config,
		classifier: NewClassifier(config.HTTPClient),
		logger:     logger,
		sessions:   make(map[models.ChannelID]*Session),
		stopCh:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

// GetOrCreateSession returns the existing session for channelID, or
// classifies streamURL and starts a new one. Returns ErrUnsupportedStream
// if the classifier cannot relay the URL.
func (m *Manager) GetOrCreateSession(ctx context.Context, channelID models.ChannelID, streamURL string) (*Session, error) {
	m.mu.RLock()
	if s, ok := m.sessions[channelID]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	result, err := m.classifier.Classify(ctx, streamURL)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", streamURL, err)
	}
	if result.Mode == Unsupported {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedStream, result.Reasons)
	}

	m.mu.Lock()
	if s, ok := m.sessions[channelID]; ok {
		m.mu.Unlock()
		return s, nil
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	session := &Session{
		ChannelID:      channelID,
		StreamURL:      streamURL,
		Classification: result,
		StartedAt:      time.Now(),
		buf:            NewFanoutBuffer(m.config.BufferConfig),
		cancel:         cancel,
	}
	m.sessions[channelID] = session
	m.mu.Unlock()

	switch result.Mode {
	case RawTsPassthrough:
		go runPassthrough(sessionCtx, m.config.HTTPClient, streamURL, session.buf)
	case CollapseHlsSingleVariant:
		go runCollapser(sessionCtx, m.config.HTTPClient, streamURL, result.TargetDuration, session.buf)
	}

	m.logger.Info("relay session started",
		slog.String("channel_id", channelID.String()),
		slog.String("mode", result.Mode.String()),
	)
	return session, nil
}

// GetSession returns the active session for a channel, if any.
func (m *Manager) GetSession(channelID models.ChannelID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[channelID]
	return s, ok
}

// HasSession reports whether a session is active for a channel.
func (m *Manager) HasSession(channelID models.ChannelID) bool {
	_, ok := m.GetSession(channelID)
	return ok
}

// CloseSession tears down a channel's session immediately, if one exists.
func (m *Manager) CloseSession(channelID models.ChannelID) error {
	m.mu.Lock()
	s, ok := m.sessions[channelID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, channelID)
	m.mu.Unlock()

	s.cancel()
	return nil
}

// ManagerStats summarizes active sessions.
type ManagerStats struct {
	ActiveSessions  int
	TotalSubscriber int
}

// Stats returns aggregate manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ManagerStats{ActiveSessions: len(m.sessions)}
	for _, s := range m.sessions {
		stats.TotalSubscriber += s.buf.SubscriberCount()
	}
	return stats
}

// cleanupLoop tears down sessions whose subscriber count has been zero
// for longer than IdleGracePeriod, and drops sessions whose producer
// closed the buffer on its own (upstream EOF/error).
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.buf.SubscriberCount() == 0 {
			s.markIdle()
		} else {
			s.clearIdle()
		}

		if s.idleFor(m.config.IdleGracePeriod) {
			s.cancel()
			delete(m.sessions, id)
			m.logger.Info("relay session closed (idle)", slog.String("channel_id", id.String()))
		}
	}
}

// Close stops the cleanup loop and cancels every active session.
func (m *Manager) Close() {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.cancel()
		delete(m.sessions, id)
	}
}

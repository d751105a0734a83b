package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chanrelay/chanrelay/internal/models"
	"github.com/chanrelay/chanrelay/internal/relay"
	"github.com/chanrelay/chanrelay/internal/repository"
)

// ErrChannelNotFound is returned when a relay is requested for a channel
// that does not exist.
var ErrChannelNotFound = errors.New("channel not found")

// ErrProxyNotFound is returned when a relay is requested for a proxy that
// does not exist.
var ErrProxyNotFound = errors.New("proxy not found")

// RelayService manages live relay sessions: classifying upstream
// channels into passthrough or HLS-collapsing, and fanning the result
// out to subscribers of the live endpoint.
type RelayService struct {
	channelRepo     repository.ChannelRepository
	streamProxyRepo repository.StreamProxyRepository

	relayManager *relay.Manager
	logger       *slog.Logger
}

// NewRelayService creates a relay service with default manager settings.
func NewRelayService(channelRepo repository.ChannelRepository, streamProxyRepo repository.StreamProxyRepository) *RelayService {
	s := &RelayService{
		channelRepo:     channelRepo,
		streamProxyRepo: streamProxyRepo,
		logger:          slog.Default(),
	}
	s.relayManager = relay.NewManager(relay.DefaultManagerConfig(), s.logger)
	return s
}

// WithLogger sets the service logger and propagates it to a freshly
// constructed relay manager.
func (s *RelayService) WithLogger(logger *slog.Logger) *RelayService {
	s.logger = logger
	config := relay.DefaultManagerConfig()
	s.relayManager.Close()
	s.relayManager = relay.NewManager(config, logger)
	return s
}

// WithHTTPClient sets the HTTP client used for upstream fetches.
func (s *RelayService) WithHTTPClient(client *http.Client) *RelayService {
	config := relay.DefaultManagerConfig()
	config.HTTPClient = client
	s.relayManager.Close()
	s.relayManager = relay.NewManager(config, s.logger)
	return s
}

// WithBufferConfig sets the fan-out buffer bounds for new sessions.
func (s *RelayService) WithBufferConfig(bufConfig relay.BufferConfig) *RelayService {
	config := relay.DefaultManagerConfig()
	config.BufferConfig = bufConfig
	s.relayManager.Close()
	s.relayManager = relay.NewManager(config, s.logger)
	return s
}

// Close tears down the underlying relay manager and all active sessions.
func (s *RelayService) Close() {
	s.relayManager.Close()
}

// StartRelay classifies and starts (or reuses) a relay session for a
// channel, returning the session's fan-out buffer.
func (s *RelayService) StartRelay(ctx context.Context, channelID models.ChannelID) (*relay.Session, error) {
	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelNotFound, err)
	}

	session, err := s.relayManager.GetOrCreateSession(ctx, channel.ID, channel.StreamURL)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// StopRelay tears down the relay session for a channel, if one exists.
func (s *RelayService) StopRelay(channelID models.ChannelID) error {
	return s.relayManager.CloseSession(channelID)
}

// GetSessionForChannel returns the active relay session for a channel.
func (s *RelayService) GetSessionForChannel(channelID models.ChannelID) (*relay.Session, bool) {
	return s.relayManager.GetSession(channelID)
}

// HasSessionForChannel reports whether a channel has an active relay session.
func (s *RelayService) HasSessionForChannel(channelID models.ChannelID) bool {
	return s.relayManager.HasSession(channelID)
}

// GetRelayStats returns aggregate statistics across all active sessions.
func (s *RelayService) GetRelayStats() relay.ManagerStats {
	return s.relayManager.Stats()
}

// ClassifyStream runs the classifier against a URL without starting a session.
func (s *RelayService) ClassifyStream(ctx context.Context, streamURL string) (relay.ClassificationResult, error) {
	return relay.NewClassifier(http.DefaultClient).Classify(ctx, streamURL)
}

// StreamInfo bundles a proxy and channel for serving a live relay request.
type StreamInfo struct {
	Proxy   *models.StreamProxy
	Channel *models.Channel
}

// GetStreamInfo loads the proxy and channel needed to serve a live relay
// request.
func (s *RelayService) GetStreamInfo(ctx context.Context, proxyID models.ULID, channelID models.ChannelID) (*StreamInfo, error) {
	proxy, err := s.streamProxyRepo.GetByID(ctx, proxyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyNotFound, err)
	}

	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelNotFound, err)
	}

	return &StreamInfo{Proxy: proxy, Channel: channel}, nil
}

// GetProxy retrieves a proxy by ID.
func (s *RelayService) GetProxy(ctx context.Context, proxyID models.ULID) (*models.StreamProxy, error) {
	proxy, err := s.streamProxyRepo.GetByID(ctx, proxyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyNotFound, err)
	}
	return proxy, nil
}

// GetChannel retrieves a channel by ID.
func (s *RelayService) GetChannel(ctx context.Context, channelID models.ChannelID) (*models.Channel, error) {
	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelNotFound, err)
	}
	return channel, nil
}

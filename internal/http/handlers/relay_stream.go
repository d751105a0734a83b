package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/chanrelay/chanrelay/internal/models"
	"github.com/chanrelay/chanrelay/internal/relay"
	"github.com/chanrelay/chanrelay/internal/service"
	"github.com/chanrelay/chanrelay/internal/version"
)

// RelayStreamHandler serves the live streaming endpoint: it resolves a
// proxy+channel pair, starts (or reuses) the channel's relay session, and
// fans the session's buffer out to the requesting client.
type RelayStreamHandler struct {
	relayService *service.RelayService
	logger       *slog.Logger
}

// NewRelayStreamHandler creates a new relay stream handler.
func NewRelayStreamHandler(relayService *service.RelayService) *RelayStreamHandler {
	return &RelayStreamHandler{
		relayService: relayService,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *RelayStreamHandler) WithLogger(logger *slog.Logger) *RelayStreamHandler {
	h.logger = logger
	return h
}

func setStreamHeaders(w http.ResponseWriter, mode string) {
	w.Header().Set("X-Stream-Mode", mode)
	w.Header().Set("X-Chanrelay-Version", version.Version)
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Range")
}

// Register registers documentation-only Huma operations. The live
// streaming endpoint itself is a raw Chi handler (RegisterChiRoutes)
// because it needs to emit a 302 redirect or stream indefinitely, neither
// of which fit Huma's response model.
func (h *RelayStreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "classifyStream",
		Method:      "POST",
		Path:        "/api/v1/relay/classify",
		Summary:     "Classify a stream URL",
		Description: "Classifies a stream URL as raw TS passthrough, HLS collapsing, or unsupported",
		Tags:        []string{"Stream Relay"},
	}, h.ClassifyStream)

	huma.Register(api, huma.Operation{
		OperationID: "getRelayStats",
		Method:      "GET",
		Path:        "/api/v1/relay/sessions",
		Summary:     "Get relay session stats",
		Description: "Returns aggregate statistics across all active relay sessions",
		Tags:        []string{"Stream Relay"},
	}, h.GetRelayStats)
}

// RegisterChiRoutes registers the raw streaming endpoint directly on the
// router, bypassing Huma.
func (h *RelayStreamHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/proxy/{proxyId}/{channelId}", h.handleStream)
	router.Options("/proxy/{proxyId}/{channelId}", h.handleStreamOptions)
}

func (h *RelayStreamHandler) handleStreamOptions(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RelayStreamHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	proxyIDStr := chi.URLParam(r, "proxyId")
	channelIDStr := chi.URLParam(r, "channelId")

	proxyID, err := models.ParseULID(proxyIDStr)
	if err != nil {
		http.Error(w, "invalid proxy id", http.StatusBadRequest)
		return
	}
	channelID, err := models.ParseChannelID(channelIDStr)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}

	info, err := h.relayService.GetStreamInfo(r.Context(), proxyID, channelID)
	if err != nil {
		if errors.Is(err, service.ErrProxyNotFound) || errors.Is(err, service.ErrChannelNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch info.Proxy.ProxyMode {
	case models.StreamProxyModeRedirect:
		setStreamHeaders(w, "redirect")
		http.Redirect(w, r, info.Channel.StreamURL, http.StatusFound)
	case models.StreamProxyModeRelay:
		h.streamRelay(w, r, info)
	default:
		h.streamDirectProxy(w, r, info)
	}
}

// streamDirectProxy (proxy mode) fetches the upstream once per client and
// copies bytes straight through, without going through the fan-out buffer.
func (h *RelayStreamHandler) streamDirectProxy(w http.ResponseWriter, r *http.Request, info *service.StreamInfo) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, info.Channel.StreamURL, nil)
	if err != nil {
		http.Error(w, "bad upstream url", http.StatusBadGateway)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	setStreamHeaders(w, "proxy")
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// streamRelay (relay mode) starts or reuses the channel's relay session and
// streams the fan-out buffer to this client until it disconnects or the
// session ends.
func (h *RelayStreamHandler) streamRelay(w http.ResponseWriter, r *http.Request, info *service.StreamInfo) {
	session, err := h.relayService.StartRelay(r.Context(), info.Channel.ID)
	if err != nil {
		if errors.Is(err, relay.ErrUnsupportedStream) {
			http.Error(w, "unsupported stream", http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "failed to start relay", http.StatusBadGateway)
		return
	}

	buf := session.Buffer()
	sub := buf.Subscribe(r.UserAgent(), r.RemoteAddr)
	defer buf.Unsubscribe(sub.ID)

	setStreamHeaders(w, session.Classification.Mode.String())
	w.Header().Set("Content-Type", "video/mp2t")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	reader := relay.NewSubscriberReader(buf, sub)
	buf2 := make([]byte, 64*1024)
	for {
		n, err := reader.ReadContext(r.Context(), buf2)
		if n > 0 {
			if _, werr := w.Write(buf2[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// ClassifyStreamInput is the input for classifying a stream URL.
type ClassifyStreamInput struct {
	Body struct {
		URL string `json:"url" required:"true"`
	}
}

// ClassifyStreamOutput is the output for classifying a stream URL.
type ClassifyStreamOutput struct {
	Body struct {
		Mode           string   `json:"mode"`
		TargetDuration float64  `json:"target_duration_seconds,omitempty"`
		Reasons        []string `json:"reasons,omitempty"`
	}
}

// ClassifyStream classifies a stream URL without starting a relay session.
func (h *RelayStreamHandler) ClassifyStream(ctx context.Context, input *ClassifyStreamInput) (*ClassifyStreamOutput, error) {
	result, err := h.relayService.ClassifyStream(ctx, input.Body.URL)
	if err != nil {
		return nil, huma.Error502BadGateway("classification failed: " + err.Error())
	}

	resp := &ClassifyStreamOutput{}
	resp.Body.Mode = result.Mode.String()
	resp.Body.TargetDuration = result.TargetDuration.Seconds()
	resp.Body.Reasons = result.Reasons
	return resp, nil
}

// GetRelayStatsInput is the input for getting relay stats.
type GetRelayStatsInput struct{}

// GetRelayStatsOutput is the output for getting relay stats.
type GetRelayStatsOutput struct {
	Body struct {
		ActiveSessions  int `json:"active_sessions"`
		TotalSubscriber int `json:"total_subscribers"`
	}
}

// GetRelayStats returns aggregate statistics across all active sessions.
func (h *RelayStreamHandler) GetRelayStats(ctx context.Context, input *GetRelayStatsInput) (*GetRelayStatsOutput, error) {
	stats := h.relayService.GetRelayStats()
	resp := &GetRelayStatsOutput{}
	resp.Body.ActiveSessions = stats.ActiveSessions
	resp.Body.TotalSubscriber = stats.TotalSubscriber
	return resp, nil
}

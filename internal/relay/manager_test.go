package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chanrelay/chanrelay/internal/models"
	"github.com/stretchr/testify/require"
)

func testChannelID(t *testing.T) models.ChannelID {
	t.Helper()
	return models.NewChannelID(models.NewULID(), "http://example.invalid/stream", t.Name())
}

func TestManager_PassthroughSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write([]byte{tsSyncByte, 1, 2, 3})
	}))
	defer srv.Close()

	config := DefaultManagerConfig()
	config.HTTPClient = srv.Client()
	m := NewManager(config, nil)
	defer m.Close()

	channelID := testChannelID(t)
	session, err := m.GetOrCreateSession(t.Context(), channelID, srv.URL)
	require.NoError(t, err)
	require.Equal(t, RawTsPassthrough, session.Classification.Mode)

	again, err := m.GetOrCreateSession(t.Context(), channelID, srv.URL)
	require.NoError(t, err)
	require.Same(t, session, again)
}

func TestManager_UnsupportedStreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	config := DefaultManagerConfig()
	config.HTTPClient = srv.Client()
	m := NewManager(config, nil)
	defer m.Close()

	_, err := m.GetOrCreateSession(t.Context(), testChannelID(t), srv.URL)
	require.ErrorIs(t, err, ErrUnsupportedStream)
}

func TestManager_CleansUpIdleSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		<-r.Context().Done()
	}))
	defer srv.Close()

	config := DefaultManagerConfig()
	config.HTTPClient = srv.Client()
	config.IdleGracePeriod = 10 * time.Millisecond
	config.CleanupInterval = 5 * time.Millisecond
	m := NewManager(config, nil)
	defer m.Close()

	channelID := testChannelID(t)
	_, err := m.GetOrCreateSession(context.Background(), channelID, srv.URL)
	require.NoError(t, err)
	require.True(t, m.HasSession(channelID))

	require.Eventually(t, func() bool {
		return !m.HasSession(channelID)
	}, time.Second, 5*time.Millisecond, "idle session should have been cleaned up")
}

package relay

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClassifier_RawTsByContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write([]byte{0x00, 0x00, 0x00})
	}))
	defer srv.Close()

	c := NewClassifier(srv.Client())
	result, err := c.Classify(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Mode != RawTsPassthrough {
		t.Errorf("expected RawTsPassthrough, got %v: %v", result.Mode, result.Reasons)
	}
}

func TestClassifier_RawTsBySyncByte(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{tsSyncByte, 0x40, 0x00, 0x10})
	}))
	defer srv.Close()

	c := NewClassifier(srv.Client())
	result, err := c.Classify(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Mode != RawTsPassthrough {
		t.Errorf("expected RawTsPassthrough, got %v", result.Mode)
	}
}

func TestClassifier_SingleVariantMediaPlaylist(t *testing.T) {
	const media = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:4\n#EXT-X-MEDIA-SEQUENCE:0\n#EXTINF:4.0,\nseg0.ts\n#EXTINF:4.0,\nseg1.ts\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(media))
	}))
	defer srv.Close()

	c := NewClassifier(srv.Client())
	result, err := c.Classify(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Mode != CollapseHlsSingleVariant {
		t.Errorf("expected CollapseHlsSingleVariant, got %v: %v", result.Mode, result.Reasons)
	}
}

func TestClassifier_MultivariantIsUnsupported(t *testing.T) {
	const master = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1000000\nlow.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=5000000\nhigh.m3u8\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(master))
	}))
	defer srv.Close()

	c := NewClassifier(srv.Client())
	result, err := c.Classify(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Mode != Unsupported {
		t.Errorf("expected Unsupported for multivariant playlist, got %v", result.Mode)
	}
}

func TestClassifier_UnrecognizedContentIsUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a stream</html>"))
	}))
	defer srv.Close()

	c := NewClassifier(srv.Client())
	result, err := c.Classify(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if result.Mode != Unsupported {
		t.Errorf("expected Unsupported, got %v", result.Mode)
	}
}

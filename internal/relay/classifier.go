package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/chanrelay/chanrelay/internal/codec"
)

const (
	probeTimeout     = 6 * time.Second
	maxPlaylistBytes = 256 * 1024
	tsSyncByte       = 0x47
)

// Classifier probes an upstream URL and decides whether it can be
// relayed as raw TS passthrough or single-variant HLS collapsing.
type Classifier struct {
	client *http.Client
}

// NewClassifier creates a Classifier using the given HTTP client.
func NewClassifier(client *http.Client) *Classifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Classifier{client: client}
}

// Classify fetches the beginning of streamURL and decides its relay mode.
func (c *Classifier) Classify(ctx context.Context, streamURL string) (ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return ClassificationResult{}, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		classificationFallbackTotal.Inc()
		return ClassificationResult{Mode: Unsupported, Reasons: []string{fmt.Sprintf("probe request failed: %v", err)}}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		classificationFallbackTotal.Inc()
		result := ClassificationResult{Mode: Unsupported, Reasons: []string{fmt.Sprintf("probe returned HTTP %d", resp.StatusCode)}}
		incClassification(result.Mode)
		return result, nil
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		classificationFallbackTotal.Inc()
		result := ClassificationResult{Mode: Unsupported, Reasons: []string{fmt.Sprintf("reading probe body: %v", err)}}
		incClassification(result.Mode)
		return result, nil
	}

	result := c.classifyBody(contentType, body)
	incClassification(result.Mode)
	return result, nil
}

func (c *Classifier) classifyBody(contentType string, body []byte) ClassificationResult {
	if strings.Contains(contentType, "video/mp2t") || (len(body) > 0 && body[0] == tsSyncByte) {
		return ClassificationResult{
			Mode:      RawTsPassthrough,
			Reasons:   []string{"TS sync byte or video/mp2t content-type"},
			Container: codec.ContainerMPEGTS,
		}
	}

	looksLikeHLS := strings.Contains(contentType, "application/vnd.apple.mpegurl") ||
		strings.Contains(contentType, "application/x-mpegurl") ||
		strings.HasPrefix(string(body), "#EXTM3U")
	if !looksLikeHLS {
		return ClassificationResult{Mode: Unsupported, Reasons: []string{"neither TS nor HLS playlist markers found"}}
	}

	pl, err := playlist.Unmarshal(body)
	if err != nil {
		return ClassificationResult{Mode: Unsupported, Reasons: []string{fmt.Sprintf("playlist parse failed: %v", err)}}
	}

	switch p := pl.(type) {
	case *playlist.Multivariant:
		return ClassificationResult{
			Mode:    Unsupported,
			Reasons: []string{fmt.Sprintf("multivariant playlist with %d variant(s), not single-variant", len(p.Variants))},
		}
	case *playlist.Media:
		return c.classifyMedia(p)
	default:
		return ClassificationResult{Mode: Unsupported, Reasons: []string{"unrecognized playlist type"}}
	}
}

func (c *Classifier) classifyMedia(media *playlist.Media) ClassificationResult {
	target := time.Duration(media.TargetDuration) * time.Second
	if target <= 0 {
		target = 6 * time.Second
	}
	return ClassificationResult{
		Mode:           CollapseHlsSingleVariant,
		TargetDuration: target,
		Reasons:        []string{fmt.Sprintf("single media playlist with %d segment(s)", len(media.Segments))},
		Container:      codec.ContainerFMP4,
	}
}

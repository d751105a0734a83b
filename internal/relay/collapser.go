package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

const (
	collapserSegmentTimeout  = 10 * time.Second
	collapserPlaylistTimeout = 5 * time.Second
	collapserMinPollInterval = 2 * time.Second
	collapserMaxPlaylistErrs = 3
	collapserRetryBaseDelay  = 1 * time.Second
	collapserRetryMaxDelay   = 30 * time.Second
)

// runCollapser polls a single-variant HLS media playlist, fetches new
// segments in order, and appends them to buf as a continuous TS stream.
// It stops on #EXT-X-ENDLIST, ctx cancellation, or three consecutive
// playlist errors. It always closes buf before returning.
func runCollapser(ctx context.Context, client *http.Client, playlistURL string, targetDuration time.Duration, buf *FanoutBuffer) {
	var cause error
	defer func() { buf.Close(cause) }()

	if targetDuration <= 0 {
		targetDuration = 6 * time.Second
	}

	pollInterval := targetDuration / 2
	if pollInterval > collapserMinPollInterval {
		pollInterval = collapserMinPollInterval
	}

	var lastSeenSeq int64 = -1
	var playlistErrs, segmentErrs int

	for {
		select {
		case <-ctx.Done():
			cause = ctx.Err()
			return
		default:
		}

		collapsingLoopIterations.Inc()

		media, err := fetchMediaPlaylist(ctx, client, playlistURL)
		if err != nil {
			playlistErrs++
			collapsingPlaylistErrors.Inc()
			if playlistErrs >= collapserMaxPlaylistErrs {
				cause = fmt.Errorf("collapsing loop: playlist fetch failed %d times: %w", playlistErrs, err)
				return
			}
			if !sleepWithBackoff(ctx, playlistErrs) {
				cause = ctx.Err()
				return
			}
			continue
		}
		playlistErrs = 0

		firstSeq := int64(media.MediaSequence)
		if lastSeenSeq >= 0 && firstSeq+int64(len(media.Segments)) <= lastSeenSeq {
			// The playlist's whole sequence range is below what we've
			// already emitted: the server reset media-sequence, treat
			// this as a new stream start.
			lastSeenSeq = firstSeq - 1
		}

		for i, seg := range media.Segments {
			if seg == nil {
				continue
			}
			seq := firstSeq + int64(i)
			if seq <= lastSeenSeq {
				continue
			}

			segURL := resolveSegmentURL(playlistURL, seg.URI)
			data, err := fetchSegment(ctx, client, segURL)
			if err != nil {
				segmentErrs++
				collapsingSegmentErrors.Inc()
				if !sleepWithBackoff(ctx, segmentErrs) {
					cause = ctx.Err()
					return
				}
				continue
			}
			segmentErrs = 0

			if writeErr := buf.Write(data); writeErr != nil {
				cause = writeErr
				return
			}
			collapsingSegmentsEmitted.Inc()
			lastSeenSeq = seq
		}

		if media.Endlist {
			return
		}

		if !sleepFor(ctx, pollInterval) {
			cause = ctx.Err()
			return
		}
	}
}

func sleepWithBackoff(ctx context.Context, attempt int) bool {
	delay := collapserRetryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > collapserRetryMaxDelay {
		delay = collapserRetryMaxDelay
	}
	return sleepFor(ctx, delay)
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func fetchMediaPlaylist(ctx context.Context, client *http.Client, playlistURL string) (*playlist.Media, error) {
	ctx, cancel := context.WithTimeout(ctx, collapserPlaylistTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return nil, err
	}

	pl, err := playlist.Unmarshal(body)
	if err != nil {
		return nil, err
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return nil, fmt.Errorf("expected media playlist during collapsing, got multivariant")
	}
	return media, nil
}

func fetchSegment(ctx context.Context, client *http.Client, segURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, collapserSegmentTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func resolveSegmentURL(playlistURL, segmentURI string) string {
	if strings.HasPrefix(segmentURI, "http://") || strings.HasPrefix(segmentURI, "https://") {
		return segmentURI
	}
	base, err := url.Parse(playlistURL)
	if err != nil {
		if idx := strings.LastIndex(playlistURL, "/"); idx >= 0 {
			return playlistURL[:idx+1] + segmentURI
		}
		return segmentURI
	}
	ref, err := url.Parse(segmentURI)
	if err != nil {
		return segmentURI
	}
	return base.ResolveReference(ref).String()
}

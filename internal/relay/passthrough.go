package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const passthroughChunkSize = 64 * 1024

// runPassthrough streams streamURL's body into buf 1:1 until ctx is
// cancelled or the upstream closes/errors. It always closes buf before
// returning.
func runPassthrough(ctx context.Context, client *http.Client, streamURL string, buf *FanoutBuffer) {
	var cause error
	defer func() { buf.Close(cause) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		cause = fmt.Errorf("passthrough request: %w", err)
		return
	}

	resp, err := client.Do(req)
	if err != nil {
		cause = fmt.Errorf("passthrough connect: %w", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cause = fmt.Errorf("passthrough upstream returned HTTP %d", resp.StatusCode)
		return
	}

	chunk := make([]byte, passthroughChunkSize)
	for {
		select {
		case <-ctx.Done():
			cause = ctx.Err()
			return
		default:
		}

		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			data := make([]byte, n)
			copy(data, chunk[:n])
			if writeErr := buf.Write(data); writeErr != nil {
				cause = writeErr
				return
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				cause = fmt.Errorf("passthrough read: %w", readErr)
			}
			return
		}
	}
}

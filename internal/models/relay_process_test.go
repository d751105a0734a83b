package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayProcess_Validate(t *testing.T) {
	tests := []struct {
		name    string
		process RelayProcess
		wantErr error
	}{
		{
			name:    "missing config id",
			process: RelayProcess{UpstreamURL: "http://example.com/stream.ts"},
			wantErr: ErrSourceIDRequired,
		},
		{
			name:    "missing upstream url",
			process: RelayProcess{ConfigID: NewULID()},
			wantErr: ErrUpstreamURLRequired,
		},
		{
			name:    "valid",
			process: RelayProcess{ConfigID: NewULID(), UpstreamURL: "http://example.com/stream.ts"},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.process.Validate()
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRelayProcess_AddBytes(t *testing.T) {
	r := &RelayProcess{ConfigID: NewULID(), UpstreamURL: "http://example.com/stream.ts"}
	r.AddBytes(1024, 4096)
	r.AddBytes(512, 2048)

	assert.Equal(t, int64(1536), r.BytesIn)
	assert.Equal(t, int64(6144), r.BytesOut)
}

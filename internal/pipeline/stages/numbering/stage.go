// Package numbering implements the channel numbering pipeline stage.
//
// The preserve-mode algorithm follows a two-pass approach:
//  1. First pass: Collect all channels with explicit TvgChno values (set via
//     upstream data or data mapping rules). If multiple channels have the
//     same number, resolve conflicts by incrementing to the next available.
//  2. Second pass: Assign sequential numbers from StartNumber to remaining
//     unnumbered channels.
//
// This ensures channels with explicit numbers keep them (or get the nearest
// available), while unnumbered channels fill in gaps starting from the
// configured starting number. Ignore mode skips the first pass entirely and
// renumbers every channel sequentially from StartNumber.
package numbering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chanrelay/chanrelay/internal/models"
	"github.com/chanrelay/chanrelay/internal/pipeline/core"
	"github.com/chanrelay/chanrelay/internal/pipeline/shared"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "numbering"
	// StageName is the human-readable name for this stage.
	StageName = "Channel Numbering"
)

// NumberingMode is an alias for models.NumberingMode for backwards compatibility.
type NumberingMode = models.NumberingMode

// Mode constants for backwards compatibility.
const (
	NumberingModePreserve = models.NumberingModePreserve
	NumberingModeIgnore   = models.NumberingModeIgnore
)

// ConflictResolution represents how a numbering conflict was resolved.
type ConflictResolution struct {
	ChannelName    string
	OriginalNumber int
	AssignedNumber int
}

// Stage assigns channel numbers to channels.
type Stage struct {
	shared.BaseStage
	mode      NumberingMode
	logger    *slog.Logger
	conflicts []ConflictResolution
}

// New creates a new numbering stage with preserve mode (default).
func New() *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		mode:      NumberingModePreserve,
		conflicts: make([]ConflictResolution, 0),
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New()
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// WithMode sets the numbering mode.
func (s *Stage) WithMode(mode NumberingMode) *Stage {
	s.mode = mode
	return s
}

// GetConflicts returns the conflicts resolved during the last execution.
func (s *Stage) GetConflicts() []ConflictResolution {
	return s.conflicts
}

// Execute assigns channel numbers to all channels.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	// Reset conflicts for this execution
	s.conflicts = make([]ConflictResolution, 0)

	if len(state.Channels) == 0 {
		s.log(ctx, slog.LevelInfo, "no channels to number, skipping")
		result.Message = "No channels to number"
		return result, nil
	}

	s.log(ctx, slog.LevelInfo, "starting channel numbering",
		slog.Int("channel_count", len(state.Channels)),
		slog.String("mode", string(s.mode)))

	startingNumber := state.Proxy.StartNumber
	if startingNumber <= 0 {
		startingNumber = 1
	}

	// Determine the numbering mode - use proxy config if set, otherwise use stage default
	mode := s.mode
	if state.Proxy.NumberingMode != "" {
		mode = state.Proxy.NumberingMode
	}

	var numberedCount int

	switch mode {
	case NumberingModeIgnore:
		numberedCount = s.assignSequential(state.Channels, startingNumber)

	case NumberingModePreserve:
		numberedCount = s.assignPreserving(state.Channels, startingNumber)

	default:
		numberedCount = s.assignPreserving(state.Channels, startingNumber)
	}

	result.RecordsProcessed = len(state.Channels)
	result.RecordsModified = numberedCount

	// Build result message including conflict info
	if len(s.conflicts) > 0 {
		result.Message = fmt.Sprintf("Numbered %d channels starting from %d (%d conflicts resolved)",
			numberedCount, startingNumber, len(s.conflicts))
	} else {
		result.Message = fmt.Sprintf("Numbered %d channels starting from %d", numberedCount, startingNumber)
	}

	s.log(ctx, slog.LevelInfo, "channel numbering complete",
		slog.Int("channels_numbered", numberedCount),
		slog.Int("starting_number", startingNumber),
		slog.String("mode", string(mode)),
		slog.Int("conflicts_resolved", len(s.conflicts)))

	// Create artifact with conflict metadata
	artifact := core.NewArtifact(core.ArtifactTypeChannels, core.ProcessingStageNumbered, StageID).
		WithRecordCount(len(state.Channels)).
		WithMetadata("starting_number", startingNumber).
		WithMetadata("mode", string(mode)).
		WithMetadata("conflicts_resolved", len(s.conflicts))
	result.Artifacts = append(result.Artifacts, artifact)

	return result, nil
}

// assignSequential assigns sequential channel numbers, discarding any
// upstream tvg_chno.
func (s *Stage) assignSequential(channels []*models.Channel, startNum int) int {
	num := startNum
	for _, ch := range channels {
		ch.TvgChno = num
		num++
	}
	return len(channels)
}

// assignPreserving keeps existing channel numbers where valid, resolving conflicts.
//  1. First pass: Claim all explicit TvgChno > 0 values. If conflict, increment to next available.
//  2. Build available number pool from StartNumber.
//  3. Second pass: Assign sequential numbers from pool to channels with TvgChno == 0.
//
// The key difference from simple sequential: channels with explicit numbers get priority and keep
// their numbers (or nearest available), while unnumbered channels fill in from StartNumber.
func (s *Stage) assignPreserving(channels []*models.Channel, startNum int) int {
	// Track which numbers are already claimed
	usedNumbers := make(map[int]bool)

	// Track channels that need assignment and their resolved numbers
	// If resolvedNum is nil, channel needs sequential assignment from pool
	// If resolvedNum is set, channel had a conflict and was already resolved
	type channelAssignment struct {
		index       int
		resolvedNum *int
	}
	channelsNeedingNumbers := make([]channelAssignment, 0)

	channelsWithExplicit := 0
	conflictsResolved := 0

	// First pass: collect existing TvgChno values and handle conflicts
	for i, ch := range channels {
		if ch.TvgChno > 0 {
			channelsWithExplicit++
			desiredNum := ch.TvgChno
			originalNum := desiredNum

			// Try to use the desired number, or increment until we find an available one
			for usedNumbers[desiredNum] {
				desiredNum++
				conflictsResolved++
			}

			// Claim the resolved number
			usedNumbers[desiredNum] = true

			// If number was changed due to conflict, track it for later assignment
			if desiredNum != originalNum {
				if s.logger != nil {
					s.logger.Warn("channel number conflict resolved",
						"channel", ch.ChannelName,
						"original_number", originalNum,
						"assigned_number", desiredNum)
				}

				s.conflicts = append(s.conflicts, ConflictResolution{
					ChannelName:    ch.ChannelName,
					OriginalNumber: originalNum,
					AssignedNumber: desiredNum,
				})

				resolvedNum := desiredNum
				channelsNeedingNumbers = append(channelsNeedingNumbers, channelAssignment{
					index:       i,
					resolvedNum: &resolvedNum,
				})
			}
			// If number didn't change, channel already has correct number, no action needed
		} else {
			// Channel needs a number assigned - mark for sequential assignment
			channelsNeedingNumbers = append(channelsNeedingNumbers, channelAssignment{
				index:       i,
				resolvedNum: nil,
			})
		}
	}

	// Build available number pool from StartNumber
	sequentialNeeded := 0
	for _, ca := range channelsNeedingNumbers {
		if ca.resolvedNum == nil {
			sequentialNeeded++
		}
	}

	availableNumbers := make([]int, 0, sequentialNeeded)
	num := startNum
	for len(availableNumbers) < sequentialNeeded {
		if !usedNumbers[num] {
			availableNumbers = append(availableNumbers, num)
		}
		num++
	}

	// Second pass: assign numbers to channels that need them
	modified := 0
	availableIdx := 0

	for _, ca := range channelsNeedingNumbers {
		ch := channels[ca.index]

		if ca.resolvedNum != nil {
			ch.TvgChno = *ca.resolvedNum
			modified++
		} else if availableIdx < len(availableNumbers) {
			ch.TvgChno = availableNumbers[availableIdx]
			usedNumbers[ch.TvgChno] = true
			availableIdx++
			modified++
		}
	}

	if s.logger != nil {
		s.logger.Debug("numbering analysis",
			"channels_with_explicit", channelsWithExplicit,
			"conflicts_resolved", conflictsResolved,
			"sequential_assigned", availableIdx,
			"total_modified", modified)
	}

	return modified
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)

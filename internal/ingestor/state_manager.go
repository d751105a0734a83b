package ingestor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chanrelay/chanrelay/internal/models"
)

// SourceState is a source's position in the ingestion state machine:
// Idle -> Running -> (Idle | BackoffUntil) with Queued and Disabled as
// additional holds that also block a new Running transition.
type SourceState string

const (
	SourceStateIdle     SourceState = "idle"
	SourceStateQueued   SourceState = "queued"
	SourceStateRunning  SourceState = "running"
	SourceStateBackoff  SourceState = "backoff"
	SourceStateDisabled SourceState = "disabled"
)

// TriggerKind identifies what caused a try_start call.
type TriggerKind string

const (
	TriggerCron       TriggerKind = "cron"
	TriggerManual     TriggerKind = "manual"
	TriggerPostCreate TriggerKind = "post_create"
)

const (
	backoffBase     = 30 * time.Second
	backoffCapSteps = 6 // base * 2^6 = 32min, the practical ceiling
	backoffJitter   = 0.25
)

// sourceTracking is the state-machine bookkeeping that survives past a
// single ingestion's transient IngestionState entry (which is cleaned up
// a few seconds after completion): failure streak and backoff deadline.
type sourceTracking struct {
	state        SourceState
	failureCount int
	backoffUntil time.Time
	lastError    string
	lastTrigger  TriggerKind
}

// IngestionState represents the state of an ongoing ingestion.
type IngestionState struct {
	SourceID    models.ULID
	SourceName  string
	StartedAt   time.Time
	Status      string
	Processed   int
	Errors      int
	LastUpdated time.Time
	Error       error
}

// StateManager tracks the state of ongoing ingestions.
type StateManager struct {
	mu       sync.RWMutex
	states   map[models.ULID]*IngestionState
	tracking map[models.ULID]*sourceTracking
}

// NewStateManager creates a new state manager.
func NewStateManager() *StateManager {
	return &StateManager{
		states:   make(map[models.ULID]*IngestionState),
		tracking: make(map[models.ULID]*sourceTracking),
	}
}

// trackingLocked returns (creating if absent) the tracking entry for a
// source. Caller must hold m.mu.
func (m *StateManager) trackingLocked(sourceID models.ULID) *sourceTracking {
	tr, ok := m.tracking[sourceID]
	if !ok {
		tr = &sourceTracking{state: SourceStateIdle}
		m.tracking[sourceID] = tr
	}
	return tr
}

// backoffDelay computes the BackoffUntil delta for the nth consecutive
// failure (1-indexed): base * 2^min(n-1, cap) plus up to 25% jitter.
func backoffDelay(failureCount int) time.Duration {
	steps := failureCount - 1
	if steps < 0 {
		steps = 0
	}
	if steps > backoffCapSteps {
		steps = backoffCapSteps
	}
	delay := backoffBase * time.Duration(uint64(1)<<uint(steps))
	jitter := time.Duration(rand.Float64() * backoffJitter * float64(delay))
	return delay + jitter
}

// TryStart attempts an Idle -> Running transition for a source. Returns
// false without changing state if the source is Running, Queued, Disabled,
// or still within an active backoff window.
func (m *StateManager) TryStart(sourceID models.ULID, name string, trigger TriggerKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr := m.trackingLocked(sourceID)
	switch tr.state {
	case SourceStateRunning, SourceStateQueued, SourceStateDisabled:
		return false
	case SourceStateBackoff:
		if tr.backoffUntil.After(time.Now()) {
			return false
		}
	}

	tr.state = SourceStateRunning
	tr.lastTrigger = trigger

	m.states[sourceID] = &IngestionState{
		SourceID:    sourceID,
		SourceName:  name,
		StartedAt:   time.Now(),
		Status:      "ingesting",
		LastUpdated: time.Now(),
	}
	return true
}

// Finish transitions a source out of Running: to Idle on success with the
// failure counter reset, or to BackoffUntil(now+delay) on failure with the
// counter incremented and the next delay computed from it.
func (m *StateManager) Finish(sourceID models.ULID, success bool) {
	m.mu.Lock()
	tr := m.trackingLocked(sourceID)
	if success {
		tr.state = SourceStateIdle
		tr.failureCount = 0
		tr.backoffUntil = time.Time{}
	} else {
		tr.failureCount++
		tr.backoffUntil = time.Now().Add(backoffDelay(tr.failureCount))
		tr.state = SourceStateBackoff
	}
	lastErr := tr.lastError
	m.mu.Unlock()

	if success {
		m.Complete(sourceID, 0)
	} else {
		m.Fail(sourceID, fmt.Errorf("%s", lastErr))
	}
}

// SetError records the last error for a source without changing its state.
func (m *StateManager) SetError(sourceID models.ULID, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackingLocked(sourceID).lastError = msg
}

// CompleteIngestion records a successful ingestion count, resets the
// failure counter, and transitions the source to Idle.
func (m *StateManager) CompleteIngestion(sourceID models.ULID, count int) {
	m.mu.Lock()
	tr := m.trackingLocked(sourceID)
	tr.state = SourceStateIdle
	tr.failureCount = 0
	tr.backoffUntil = time.Time{}
	m.mu.Unlock()

	m.Complete(sourceID, count)
}

// Disable transitions a source to Disabled, blocking further TryStart calls
// until Enable is called.
func (m *StateManager) Disable(sourceID models.ULID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackingLocked(sourceID).state = SourceStateDisabled
}

// Enable transitions a disabled source back to Idle.
func (m *StateManager) Enable(sourceID models.ULID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr := m.trackingLocked(sourceID)
	if tr.state == SourceStateDisabled {
		tr.state = SourceStateIdle
	}
}

// GetSourceState returns the current state-machine state for a source,
// defaulting to Idle if the source has never been tracked.
func (m *StateManager) GetSourceState(sourceID models.ULID) SourceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tr, ok := m.tracking[sourceID]; ok {
		return tr.state
	}
	return SourceStateIdle
}

// BackoffUntil returns the backoff deadline for a source and whether one is
// set. A zero time with false means the source is not in backoff.
func (m *StateManager) BackoffUntil(sourceID models.ULID) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.tracking[sourceID]
	if !ok || tr.state != SourceStateBackoff {
		return time.Time{}, false
	}
	return tr.backoffUntil, true
}

// Start marks an ingestion as started for a stream source.
func (m *StateManager) Start(source *models.StreamSource) error {
	return m.StartWithID(source.ID, source.Name)
}

// StartWithID marks an ingestion as started using just the ID and name.
// This is useful for EPG sources or other entities that need state tracking.
func (m *StateManager) StartWithID(id models.ULID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[id]; exists {
		return fmt.Errorf("ingestion already in progress for source %s", id)
	}

	m.states[id] = &IngestionState{
		SourceID:    id,
		SourceName:  name,
		StartedAt:   time.Now(),
		Status:      "ingesting",
		LastUpdated: time.Now(),
	}

	return nil
}

// UpdateProgress updates the progress of an ingestion.
func (m *StateManager) UpdateProgress(sourceID models.ULID, processed, errors int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.states[sourceID]; exists {
		state.Processed = processed
		state.Errors = errors
		state.LastUpdated = time.Now()
	}
}

// Complete marks an ingestion as completed successfully.
func (m *StateManager) Complete(sourceID models.ULID, processed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.states[sourceID]; exists {
		state.Status = "completed"
		state.Processed = processed
		state.LastUpdated = time.Now()
	}

	// Remove from active states after a short delay to allow status checks
	go func() {
		time.Sleep(5 * time.Second)
		m.mu.Lock()
		delete(m.states, sourceID)
		m.mu.Unlock()
	}()
}

// Fail marks an ingestion as failed.
func (m *StateManager) Fail(sourceID models.ULID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.states[sourceID]; exists {
		state.Status = "failed"
		state.Error = err
		state.LastUpdated = time.Now()
	}

	// Remove from active states after a short delay
	go func() {
		time.Sleep(5 * time.Second)
		m.mu.Lock()
		delete(m.states, sourceID)
		m.mu.Unlock()
	}()
}

// Cancel marks an ingestion as cancelled.
func (m *StateManager) Cancel(sourceID models.ULID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.states[sourceID]; exists {
		state.Status = "cancelled"
		state.LastUpdated = time.Now()
	}

	delete(m.states, sourceID)
}

// GetState returns the state of an ingestion.
func (m *StateManager) GetState(sourceID models.ULID) (*IngestionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[sourceID]
	if !exists {
		return nil, false
	}

	// Return a copy to prevent race conditions
	copy := *state
	return &copy, true
}

// IsIngesting returns true if an ingestion is in progress for the source.
func (m *StateManager) IsIngesting(sourceID models.ULID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[sourceID]
	return exists && state.Status == "ingesting"
}

// IsAnyIngesting returns true if any ingestion is currently in progress.
func (m *StateManager) IsAnyIngesting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, state := range m.states {
		if state.Status == "ingesting" {
			return true
		}
	}
	return false
}

// ActiveIngestionCount returns the number of active ingestions.
func (m *StateManager) ActiveIngestionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, state := range m.states {
		if state.Status == "ingesting" {
			count++
		}
	}
	return count
}

// GetAllStates returns all current ingestion states.
func (m *StateManager) GetAllStates() []*IngestionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]*IngestionState, 0, len(m.states))
	for _, state := range m.states {
		copy := *state
		states = append(states, &copy)
	}
	return states
}

// WaitForCompletion waits for an ingestion to complete or the context to be cancelled.
func (m *StateManager) WaitForCompletion(ctx context.Context, sourceID models.ULID) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			state, exists := m.GetState(sourceID)
			if !exists {
				return nil // Ingestion completed and was cleaned up
			}
			if state.Status != "ingesting" {
				if state.Error != nil {
					return state.Error
				}
				return nil
			}
		}
	}
}

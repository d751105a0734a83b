package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// BufferConfig bounds a FanoutBuffer's retained chunks.
type BufferConfig struct {
	// MaxBytes is the maximum total size, in bytes, of retained chunks.
	MaxBytes int
	// MaxChunks is the maximum number of retained chunks.
	MaxChunks int
	// SubscriberGracePeriod is how long a subscriber with zero readers
	// may go without reading before it is considered stale and dropped.
	SubscriberGracePeriod time.Duration
}

// DefaultBufferConfig returns sensible defaults for the fan-out buffer.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		MaxBytes:              16 * 1024 * 1024,
		MaxChunks:             2000,
		SubscriberGracePeriod: 2 * time.Second,
	}
}

type chunk struct {
	seq  uint64
	data []byte
}

// Subscriber is a single reader's position within a FanoutBuffer.
type Subscriber struct {
	ID         uuid.UUID
	UserAgent  string
	RemoteAddr string

	ConnectedAt time.Time

	lastSeq   atomic.Uint64
	bytesRead atomic.Uint64

	lastReadMu sync.RWMutex
	lastRead   time.Time

	notifyCh chan struct{}
}

func newSubscriber(userAgent, remoteAddr string, startSeq uint64) *Subscriber {
	s := &Subscriber{
		ID:          uuid.New(),
		UserAgent:   userAgent,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		lastRead:    time.Now(),
		notifyCh:    make(chan struct{}, 1),
	}
	s.lastSeq.Store(startSeq)
	return s
}

func (s *Subscriber) touch() {
	s.lastReadMu.Lock()
	s.lastRead = time.Now()
	s.lastReadMu.Unlock()
}

func (s *Subscriber) idleSince() time.Duration {
	s.lastReadMu.RLock()
	defer s.lastReadMu.RUnlock()
	return time.Since(s.lastRead)
}

func (s *Subscriber) notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

func (s *Subscriber) wait(ctx context.Context) error {
	select {
	case <-s.notifyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BufferStats reports the current occupancy and subscriber set of a
// FanoutBuffer.
type BufferStats struct {
	ChunkCount      int
	BufferBytes     int
	TotalBytes      uint64
	CurrentSequence uint64
	SubscriberCount int
}

// FanoutBuffer is a bounded ring of byte chunks shared by a single
// producer (the passthrough copier or the HLS collapsing loop) and many
// subscribers, each tracking its own read cursor. The producer never
// blocks: once a chunk falls outside MaxBytes/MaxChunks it is evicted,
// and any subscriber still behind that point is dropped as a slow
// consumer rather than allowed to stall the ring.
type FanoutBuffer struct {
	config BufferConfig

	mu       sync.RWMutex
	chunks   []chunk
	size     int
	sequence atomic.Uint64
	closed   bool
	closeErr error

	totalBytes atomic.Uint64

	subsMu sync.RWMutex
	subs   map[uuid.UUID]*Subscriber
}

// NewFanoutBuffer creates an empty fan-out buffer.
func NewFanoutBuffer(config BufferConfig) *FanoutBuffer {
	return &FanoutBuffer{
		config: config,
		chunks: make([]chunk, 0, config.MaxChunks),
		subs:   make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers a new subscriber positioned at the buffer's current
// tail, so it only observes chunks written from this point forward.
func (b *FanoutBuffer) Subscribe(userAgent, remoteAddr string) *Subscriber {
	cur := b.sequence.Load()
	sub := newSubscriber(userAgent, remoteAddr, cur)

	b.subsMu.Lock()
	b.subs[sub.ID] = sub
	b.subsMu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber.
func (b *FanoutBuffer) Unsubscribe(id uuid.UUID) {
	b.subsMu.Lock()
	delete(b.subs, id)
	b.subsMu.Unlock()
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *FanoutBuffer) SubscriberCount() int {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	return len(b.subs)
}

// Write appends a chunk to the buffer and wakes subscribers. It never
// blocks on a slow reader; it only evicts the oldest retained chunks
// once MaxBytes/MaxChunks is exceeded.
func (b *FanoutBuffer) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBufferClosed
	}

	seq := b.sequence.Add(1)
	b.chunks = append(b.chunks, chunk{seq: seq, data: data})
	b.size += len(data)
	b.evictLocked()
	b.totalBytes.Add(uint64(len(data)))
	b.mu.Unlock()

	b.notifySubscribers()
	return nil
}

// evictLocked drops the oldest chunks until the buffer is within its
// configured bounds. Must hold b.mu.
func (b *FanoutBuffer) evictLocked() {
	for len(b.chunks) > b.config.MaxChunks || b.size > b.config.MaxBytes {
		if len(b.chunks) == 0 {
			break
		}
		b.size -= len(b.chunks[0].data)
		b.chunks = b.chunks[1:]
	}
}

func (b *FanoutBuffer) notifySubscribers() {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	for _, s := range b.subs {
		s.notify()
	}
}

// oldestRetainedSeq returns the sequence number of the oldest chunk still
// retained, or the current sequence if the buffer is empty. Must hold
// b.mu (read lock is sufficient).
func (b *FanoutBuffer) oldestRetainedSeqLocked() uint64 {
	if len(b.chunks) == 0 {
		return b.sequence.Load()
	}
	return b.chunks[0].seq
}

// ReadFor drains all chunks newer than the subscriber's cursor. Returns
// ErrSlowConsumer (and unsubscribes the caller) if the cursor has fallen
// behind the retained tail — data was evicted before the subscriber
// could read it.
func (b *FanoutBuffer) ReadFor(sub *Subscriber) ([][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	last := sub.lastSeq.Load()
	oldest := b.oldestRetainedSeqLocked()
	if len(b.chunks) > 0 && last < oldest-1 {
		b.subsMu.Lock()
		delete(b.subs, sub.ID)
		b.subsMu.Unlock()
		slowConsumersDroppedTotal.Inc()
		return nil, ErrSlowConsumer
	}

	var out [][]byte
	for _, c := range b.chunks {
		if c.seq > last {
			out = append(out, c.data)
			sub.lastSeq.Store(c.seq)
			sub.bytesRead.Add(uint64(len(c.data)))
		}
	}
	if len(out) > 0 {
		sub.touch()
	}
	return out, nil
}

// WaitAndRead blocks until new chunks are available for sub, the buffer
// closes, or ctx is done.
func (b *FanoutBuffer) WaitAndRead(ctx context.Context, sub *Subscriber) ([][]byte, error) {
	for {
		chunks, err := b.ReadFor(sub)
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 {
			return chunks, nil
		}

		if err := sub.wait(ctx); err != nil {
			return nil, err
		}

		b.mu.RLock()
		closed, closeErr := b.closed, b.closeErr
		b.mu.RUnlock()
		if closed {
			if closeErr != nil {
				return nil, closeErr
			}
			return nil, ErrBufferClosed
		}
	}
}

// Close marks the buffer closed, wakes all subscribers so pending reads
// return, and records the terminal error (if any) for subsequent reads.
func (b *FanoutBuffer) Close(cause error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.closeErr = cause
	b.mu.Unlock()

	b.notifySubscribers()
}

// Stats reports current buffer occupancy.
func (b *FanoutBuffer) Stats() BufferStats {
	b.mu.RLock()
	chunkCount := len(b.chunks)
	size := b.size
	b.mu.RUnlock()

	return BufferStats{
		ChunkCount:      chunkCount,
		BufferBytes:     size,
		TotalBytes:      b.totalBytes.Load(),
		CurrentSequence: b.sequence.Load(),
		SubscriberCount: b.SubscriberCount(),
	}
}

// SubscriberReader adapts a Subscriber into an io.Reader over a
// FanoutBuffer, for handing to an HTTP response writer.
type SubscriberReader struct {
	buf     *FanoutBuffer
	sub     *Subscriber
	pending []byte
}

// NewSubscriberReader creates a reader for the given subscriber.
func NewSubscriberReader(buf *FanoutBuffer, sub *Subscriber) *SubscriberReader {
	return &SubscriberReader{buf: buf, sub: sub}
}

// Read implements io.Reader.
func (r *SubscriberReader) Read(p []byte) (int, error) {
	return r.ReadContext(context.Background(), p)
}

// ReadContext reads with context cancellation support.
func (r *SubscriberReader) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	chunks, err := r.buf.WaitAndRead(ctx, r.sub)
	if err != nil {
		return 0, err
	}
	for _, c := range chunks {
		r.pending = append(r.pending, c...)
	}
	if len(r.pending) == 0 {
		return 0, nil
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

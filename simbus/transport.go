package simbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/simnode"
)

// The endpoint interfaces are the seam to the concrete wire transport,
// which lives outside this runtime. Each logical reader owns one sample
// endpoint and one stream-type endpoint; the sequence numbers let the
// reader preserve the mixed arrival order across the two.

// SampleWriter publishes data samples on a topic.
type SampleWriter interface {
	Write(sample Sample) error
	Close() error
}

// StreamTypeWriter publishes stream type updates on a topic.
type StreamTypeWriter interface {
	Write(streamType StreamType) error
	Close() error
}

// SampleReader is the reader-side sample endpoint.
type SampleReader interface {
	// Front returns the next sample and its arrival sequence without
	// consuming it.
	Front() (Sample, uint64, bool)

	// Take consumes and returns the next sample.
	Take() (Sample, uint64, bool)

	Close() error
}

// StreamTypeReader is the reader-side stream-type endpoint.
type StreamTypeReader interface {
	Front() (StreamType, uint64, bool)
	Take() (StreamType, uint64, bool)
	Close() error
}

// Transport creates endpoints on the wire. The notify callback fires
// whenever a reader endpoint receives data; it must not block.
type Transport interface {
	CreateSampleWriter(topic string, profile Profile) (SampleWriter, error)
	CreateSampleReader(topic string, profile Profile, capacity int, notify func()) (SampleReader, error)
	CreateStreamTypeWriter(topic string, profile Profile) (StreamTypeWriter, error)
	CreateStreamTypeReader(topic string, profile Profile, capacity int, notify func()) (StreamTypeReader, error)

	// WaitForWriter blocks until at least one sample writer exists on
	// the topic or the timeout elapses.
	WaitForWriter(topic string, timeout time.Duration) bool
}

// MemoryTransport is the in-process transport. Every endpoint created
// from the same instance shares one domain; samples and stream types of
// one topic share a sequence counter so the mixed arrival order is
// observable on the reader side.
type MemoryTransport struct {
	mu   sync.Mutex
	hubs map[string]*topicHub
}

// NewMemoryTransport creates an empty in-process domain.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{hubs: make(map[string]*topicHub)}
}

func (t *MemoryTransport) hub(topic string) *topicHub {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.hubs[topic]
	if !ok {
		h = newTopicHub()
		t.hubs[topic] = h
	}
	return h
}

func (t *MemoryTransport) CreateSampleWriter(topic string, profile Profile) (SampleWriter, error) {
	return t.hub(topic).addSampleWriter(profile), nil
}

func (t *MemoryTransport) CreateSampleReader(topic string, profile Profile, capacity int, notify func()) (SampleReader, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("sample reader capacity %d: %w", capacity, simnode.ErrInvalidArg)
	}
	return t.hub(topic).addSampleReader(capacity, notify), nil
}

func (t *MemoryTransport) CreateStreamTypeWriter(topic string, profile Profile) (StreamTypeWriter, error) {
	return t.hub(topic).addStreamTypeWriter(), nil
}

func (t *MemoryTransport) CreateStreamTypeReader(topic string, profile Profile, capacity int, notify func()) (StreamTypeReader, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("stream type reader capacity %d: %w", capacity, simnode.ErrInvalidArg)
	}
	return t.hub(topic).addStreamTypeReader(capacity, notify), nil
}

func (t *MemoryTransport) WaitForWriter(topic string, timeout time.Duration) bool {
	return t.hub(topic).waitForWriter(timeout)
}

// topicHub is the in-memory wire of one topic.
type topicHub struct {
	mu          sync.Mutex
	seq         uint64
	writerCount int

	sampleQueues []*sampleQueue
	streamQueues []*streamTypeQueue

	// lastStreamType is replayed to late-joining stream type readers.
	lastStreamType *StreamType
}

func newTopicHub() *topicHub {
	return &topicHub{}
}

func (h *topicHub) nextSeq() uint64 {
	h.seq++
	return h.seq
}

func (h *topicHub) waitForWriter(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		h.mu.Lock()
		count := h.writerCount
		h.mu.Unlock()
		if count > 0 {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		time.Sleep(minDuration(remaining, 10*time.Millisecond))
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

type seqSample struct {
	sample Sample
	seq    uint64
}

type seqStreamType struct {
	streamType StreamType
	seq        uint64
}

// sampleQueue is one reader's bounded sample history; the oldest item
// is dropped on overflow.
type sampleQueue struct {
	hub      *topicHub
	capacity int
	notify   func()
	items    []seqSample
	closed   bool
}

func (q *sampleQueue) push(item seqSample) {
	if len(q.items) == q.capacity {
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
}

func (q *sampleQueue) Front() (Sample, uint64, bool) {
	q.hub.mu.Lock()
	defer q.hub.mu.Unlock()
	if len(q.items) == 0 {
		return Sample{}, 0, false
	}
	return q.items[0].sample, q.items[0].seq, true
}

func (q *sampleQueue) Take() (Sample, uint64, bool) {
	q.hub.mu.Lock()
	defer q.hub.mu.Unlock()
	if len(q.items) == 0 {
		return Sample{}, 0, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item.sample, item.seq, true
}

func (q *sampleQueue) Close() error {
	q.hub.mu.Lock()
	defer q.hub.mu.Unlock()
	q.closed = true
	for i, other := range q.hub.sampleQueues {
		if other == q {
			q.hub.sampleQueues = append(q.hub.sampleQueues[:i], q.hub.sampleQueues[i+1:]...)
			break
		}
	}
	return nil
}

// streamTypeQueue is one reader's bounded stream-type history.
type streamTypeQueue struct {
	hub      *topicHub
	capacity int
	notify   func()
	items    []seqStreamType
	closed   bool
}

func (q *streamTypeQueue) push(item seqStreamType) {
	if len(q.items) == q.capacity {
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
}

func (q *streamTypeQueue) Front() (StreamType, uint64, bool) {
	q.hub.mu.Lock()
	defer q.hub.mu.Unlock()
	if len(q.items) == 0 {
		return StreamType{}, 0, false
	}
	return q.items[0].streamType, q.items[0].seq, true
}

func (q *streamTypeQueue) Take() (StreamType, uint64, bool) {
	q.hub.mu.Lock()
	defer q.hub.mu.Unlock()
	if len(q.items) == 0 {
		return StreamType{}, 0, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item.streamType, item.seq, true
}

func (q *streamTypeQueue) Close() error {
	q.hub.mu.Lock()
	defer q.hub.mu.Unlock()
	q.closed = true
	for i, other := range q.hub.streamQueues {
		if other == q {
			q.hub.streamQueues = append(q.hub.streamQueues[:i], q.hub.streamQueues[i+1:]...)
			break
		}
	}
	return nil
}

func (h *topicHub) addSampleReader(capacity int, notify func()) *sampleQueue {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := &sampleQueue{hub: h, capacity: capacity, notify: notify}
	h.sampleQueues = append(h.sampleQueues, q)
	return q
}

func (h *topicHub) addStreamTypeReader(capacity int, notify func()) *streamTypeQueue {
	h.mu.Lock()
	q := &streamTypeQueue{hub: h, capacity: capacity, notify: notify}
	h.streamQueues = append(h.streamQueues, q)
	var replayed bool
	if h.lastStreamType != nil {
		q.push(seqStreamType{streamType: *h.lastStreamType, seq: h.nextSeq()})
		replayed = true
	}
	h.mu.Unlock()

	if replayed && notify != nil {
		notify()
	}
	return q
}

type memorySampleWriter struct {
	hub     *topicHub
	profile Profile
	mu      sync.Mutex
	closed  bool
}

func (h *topicHub) addSampleWriter(profile Profile) *memorySampleWriter {
	h.mu.Lock()
	h.writerCount++
	h.mu.Unlock()
	return &memorySampleWriter{hub: h, profile: profile}
}

func (w *memorySampleWriter) Write(sample Sample) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("write on closed sample writer: %w", simnode.ErrInvalidState)
	}
	w.mu.Unlock()

	// A profile-bounded endpoint cannot carry oversized messages; the
	// wire would reject them.
	if w.profile.MaxMessageSize > 0 && len(sample.Data) >= w.profile.MaxMessageSize {
		return fmt.Errorf("sample of %d bytes exceeds profile %q limit %d: %w",
			len(sample.Data), w.profile.Name, w.profile.MaxMessageSize, simnode.ErrBadDevice)
	}

	w.hub.mu.Lock()
	item := seqSample{sample: sample, seq: w.hub.nextSeq()}
	notifies := make([]func(), 0, len(w.hub.sampleQueues))
	for _, q := range w.hub.sampleQueues {
		q.push(item)
		if q.notify != nil {
			notifies = append(notifies, q.notify)
		}
	}
	w.hub.mu.Unlock()

	for _, notify := range notifies {
		notify()
	}
	return nil
}

func (w *memorySampleWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.hub.mu.Lock()
	w.hub.writerCount--
	w.hub.mu.Unlock()
	return nil
}

type memoryStreamTypeWriter struct {
	hub    *topicHub
	mu     sync.Mutex
	closed bool
}

func (h *topicHub) addStreamTypeWriter() *memoryStreamTypeWriter {
	return &memoryStreamTypeWriter{hub: h}
}

func (w *memoryStreamTypeWriter) Write(streamType StreamType) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("write on closed stream type writer: %w", simnode.ErrInvalidState)
	}
	w.mu.Unlock()

	w.hub.mu.Lock()
	copied := streamType
	w.hub.lastStreamType = &copied
	item := seqStreamType{streamType: streamType, seq: w.hub.nextSeq()}
	notifies := make([]func(), 0, len(w.hub.streamQueues))
	for _, q := range w.hub.streamQueues {
		q.push(item)
		if q.notify != nil {
			notifies = append(notifies, q.notify)
		}
	}
	w.hub.mu.Unlock()

	for _, notify := range notifies {
		notify()
	}
	return nil
}

func (w *memoryStreamTypeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

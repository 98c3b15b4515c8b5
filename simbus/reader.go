package simbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GoCodeAlone/simnode"
)

// DataReceiver consumes the items a reader delivers: data samples and
// stream type updates, in their arrival order.
type DataReceiver interface {
	OnStreamType(streamType StreamType)
	OnSample(sample Sample)
}

// receiverHolder makes receiver replacement atomic: Set blocks until an
// in-flight invocation of the previous receiver finished, so a replaced
// receiver is never invoked after the call returns.
type receiverHolder struct {
	mu       sync.RWMutex
	receiver DataReceiver
}

func (h *receiverHolder) set(receiver DataReceiver) {
	h.mu.Lock()
	h.receiver = receiver
	h.mu.Unlock()
}

func (h *receiverHolder) get() DataReceiver {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.receiver
}

func (h *receiverHolder) onSample(sample Sample) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.receiver != nil {
		h.receiver.OnSample(sample)
	}
}

func (h *receiverHolder) onStreamType(streamType StreamType) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.receiver != nil {
		h.receiver.OnStreamType(streamType)
	}
}

// readerItemQueue owns a reader's two physical endpoints and pops the
// next item in endpoint-level arrival order. The queue may be read from
// at most one reception path at a time; its mutex enforces that.
type readerItemQueue struct {
	topic     *Topic
	transport Transport
	capacity  int
	logger    simnode.Logger

	// onData is the read-condition signal of the owning wait-set.
	onData atomic.Pointer[func()]

	// recreateWaitSet asks the reception loop to rebuild its wait-set
	// after the sample endpoint was recreated.
	recreateWaitSet atomic.Pointer[func()]

	mu           sync.Mutex
	sampleReader SampleReader
	streamReader StreamTypeReader
}

func newReaderItemQueue(topic *Topic, transport Transport, capacity int, logger simnode.Logger) (*readerItemQueue, error) {
	q := &readerItemQueue{
		topic:     topic,
		transport: transport,
		capacity:  capacity,
		logger:    logger,
	}
	notify := func() { q.signal() }

	streamReader, err := transport.CreateStreamTypeReader(topic.Name(), topic.StreamTypeProfile(), capacity, notify)
	if err != nil {
		return nil, fmt.Errorf("creating stream type reader for topic %q: %w", topic.Name(), err)
	}
	sampleReader, err := transport.CreateSampleReader(topic.Name(), topic.SampleProfile(), capacity, notify)
	if err != nil {
		_ = streamReader.Close()
		return nil, fmt.Errorf("creating sample reader for topic %q: %w", topic.Name(), err)
	}
	q.streamReader = streamReader
	q.sampleReader = sampleReader
	return q, nil
}

func (q *readerItemQueue) signal() {
	if fn := q.onData.Load(); fn != nil {
		(*fn)()
	}
}

func (q *readerItemQueue) setSignals(onData, recreateWaitSet func()) {
	if onData != nil {
		q.onData.Store(&onData)
	} else {
		q.onData.Store(nil)
	}
	if recreateWaitSet != nil {
		q.recreateWaitSet.Store(&recreateWaitSet)
	} else {
		q.recreateWaitSet.Store(nil)
	}
}

// hasData reports whether either endpoint holds an item.
func (q *readerItemQueue) hasData() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sampleReader == nil {
		return false
	}
	if _, _, ok := q.sampleReader.Front(); ok {
		return true
	}
	_, _, ok := q.streamReader.Front()
	return ok
}

// pop delivers at most one item to the receiver and returns whether it
// did. A stream type that changes the topic's size class first drains
// the pending samples with the existing endpoint, then recreates the
// sample endpoint under the new profile.
func (q *readerItemQueue) pop(holder *receiverHolder) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked(holder)
}

func (q *readerItemQueue) popLocked(holder *receiverHolder) bool {
	if q.sampleReader == nil {
		return false
	}

	_, sampleSeq, sampleOK := q.sampleReader.Front()
	_, streamSeq, streamOK := q.streamReader.Front()

	switch {
	case sampleOK && (!streamOK || sampleSeq < streamSeq):
		sample, _, _ := q.sampleReader.Take()
		holder.onSample(sample)
		return true

	case streamOK:
		streamType, _, _ := q.streamReader.Take()
		holder.onStreamType(streamType)
		if q.topic.UpdateStreamType(streamType) {
			q.recreateSampleReaderLocked(holder)
			if fn := q.recreateWaitSet.Load(); fn != nil {
				(*fn)()
			}
		}
		return true

	default:
		return false
	}
}

func (q *readerItemQueue) popSampleLocked(holder *receiverHolder) bool {
	sample, _, ok := q.sampleReader.Take()
	if !ok {
		return false
	}
	holder.onSample(sample)
	return true
}

// recreateSampleReaderLocked replaces the sample endpoint under the
// newly selected profile. The replacement endpoint is attached before
// the old one is drained, so no sample in flight is lost.
func (q *readerItemQueue) recreateSampleReaderLocked(holder *receiverHolder) {
	notify := func() { q.signal() }
	reader, err := q.transport.CreateSampleReader(q.topic.Name(), q.topic.SampleProfile(), q.capacity, notify)
	if err != nil {
		q.logger.Error("recreating sample reader failed",
			"topic", q.topic.Name(), "error", err)
		return
	}

	// First read all pending samples, then swap the endpoints.
	for q.popSampleLocked(holder) {
	}
	_ = q.sampleReader.Close()
	q.sampleReader = reader
}

// frontTime returns the source timestamp of the next item without
// consuming it, or nil when nothing is queued.
func (q *readerItemQueue) frontTime() *simnode.Timestamp {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sampleReader == nil {
		return nil
	}

	sample, sampleSeq, sampleOK := q.sampleReader.Front()
	_, streamSeq, streamOK := q.streamReader.Front()

	switch {
	case sampleOK && (!streamOK || sampleSeq < streamSeq):
		t := sample.SourceTime
		return &t
	case streamOK:
		var t simnode.Timestamp
		return &t
	default:
		return nil
	}
}

func (q *readerItemQueue) close() {
	q.setSignals(nil, nil)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sampleReader != nil {
		_ = q.sampleReader.Close()
		q.sampleReader = nil
	}
	if q.streamReader != nil {
		_ = q.streamReader.Close()
		q.streamReader = nil
	}
}

// DataReader is a logical reader on one topic. Reception starts when a
// receiver is set with Reset; Pop supports manual polling instead.
type DataReader struct {
	bus    *SimulationBus
	queue  *readerItemQueue
	holder *receiverHolder

	mu    sync.Mutex
	added bool
}

// Reset atomically replaces the reader's receiver; the replaced
// receiver is never invoked by reception after the call returns. The
// first Reset attaches the reader to the bus's reception loop.
func (r *DataReader) Reset(receiver DataReceiver) error {
	if receiver == nil {
		return fmt.Errorf("resetting reader with nil receiver: %w", simnode.ErrInvalidArg)
	}
	r.holder.set(receiver)

	r.mu.Lock()
	added := r.added
	r.added = true
	r.mu.Unlock()

	if !added {
		r.bus.addAccess(r.queue, r.holder)
	}
	return nil
}

// Pop delivers exactly one pending item (sample or stream type) to the
// receiver, returning false when nothing was queued.
func (r *DataReader) Pop(receiver DataReceiver) bool {
	holder := &receiverHolder{}
	holder.set(receiver)
	return r.queue.pop(holder)
}

// GetFrontTime returns the source timestamp of the next item without
// consuming it; nil when no item is queued.
func (r *DataReader) GetFrontTime() *simnode.Timestamp {
	return r.queue.frontTime()
}

// Close detaches the reader from reception and closes its endpoints.
func (r *DataReader) Close() error {
	r.mu.Lock()
	added := r.added
	r.added = false
	r.mu.Unlock()

	if added {
		r.bus.removeAccess(r.queue)
	}
	r.queue.close()
	return nil
}

package simbus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/simnode"
)

// dataAccess couples one attached reader queue with its receiver.
type dataAccess struct {
	queue  *readerItemQueue
	holder *receiverHolder

	// busy keeps a queue on exactly one reception path at a time in the
	// pool-backed strategy.
	busy atomic.Bool
}

// SimulationBus multiplexes sample and stream-type reception across all
// attached readers under one wait-set, in either the single-threaded
// cooperative or the pool-backed concurrency strategy.
type SimulationBus struct {
	cfg       Config
	transport Transport
	profiles  *ProfileStore
	logger    simnode.Logger

	mu       sync.Mutex
	topics   map[string]*Topic
	accesses []*dataAccess

	// wake is the guard condition: reader signals, set changes and
	// shutdown all trip it.
	wake chan struct{}

	accessesChanged atomic.Bool
	receiving       atomic.Bool
}

// New creates a simulation bus on the given transport. A negative
// writer-readiness timeout is clamped to zero with a warning.
func New(cfg Config, transport Transport, logger simnode.Logger) *SimulationBus {
	if logger == nil {
		logger = simnode.NopLogger{}
	}
	if cfg.DatawriterReadyTimeout < 0 {
		logger.Warn("negative datawriter_ready_timeout, clamping to zero",
			"configured", cfg.DatawriterReadyTimeout)
		cfg.DatawriterReadyTimeout = 0
	}
	if cfg.AsyncWaitsetThreads < defaultAsyncWaitsetThreads {
		cfg.AsyncWaitsetThreads = defaultAsyncWaitsetThreads
	}
	return &SimulationBus{
		cfg:       cfg,
		transport: transport,
		profiles:  NewProfileStore(),
		logger:    logger,
		topics:    make(map[string]*Topic),
		wake:      make(chan struct{}, 1),
	}
}

// Profiles exposes the bus's QoS profile store.
func (b *SimulationBus) Profiles() *ProfileStore { return b.profiles }

func (b *SimulationBus) wakeUp() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// getOrCreateTopic returns the topic object for topicName, creating it
// with streamType when it does not exist yet.
func (b *SimulationBus) getOrCreateTopic(topicName string, streamType StreamType) *Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	if topic, ok := b.topics[topicName]; ok {
		return topic
	}
	topic := newTopic(b.transport, topicName, streamType, b.profiles, b.logger)
	b.topics[topicName] = topic
	return topic
}

// readinessAppliesTo reports whether the writer readiness wait is
// configured for the signal.
func (b *SimulationBus) readinessAppliesTo(signal string) bool {
	if b.cfg.DatawriterReadyTimeout <= 0 {
		return false
	}
	for _, s := range b.cfg.MustBeReadySignals {
		if s == MustBeReadyAll || s == signal {
			return true
		}
	}
	return false
}

// CreateReader creates a logical reader on topicName. When the signal
// is configured as must-be-ready, the call blocks until a matching
// writer appears; on timeout an error is logged and a nil handle
// returned.
func (b *SimulationBus) CreateReader(topicName string, streamType StreamType, capacity int) (*DataReader, error) {
	topic := b.getOrCreateTopic(topicName, streamType)

	if b.readinessAppliesTo(topicName) {
		if !topic.WaitForConnectingWriters(b.cfg.DatawriterReadyTimeout) {
			b.logger.Error("no data writer connected within datawriter_ready_timeout",
				"signal", topicName, "timeout", b.cfg.DatawriterReadyTimeout)
			return nil, fmt.Errorf("no writer for signal %q: %w", topicName, simnode.ErrTimeout)
		}
	}

	queue, err := newReaderItemQueue(topic, b.transport, capacity, b.logger)
	if err != nil {
		return nil, err
	}
	return &DataReader{bus: b, queue: queue, holder: &receiverHolder{}}, nil
}

// CreateWriter creates a logical writer on topicName, announcing
// streamType to the topic.
func (b *SimulationBus) CreateWriter(topicName string, streamType StreamType, capacity int) (*DataWriter, error) {
	topic := b.getOrCreateTopic(topicName, streamType)
	return newDataWriter(topic, b.transport, b.logger)
}

func (b *SimulationBus) addAccess(queue *readerItemQueue, holder *receiverHolder) {
	b.mu.Lock()
	b.accesses = append(b.accesses, &dataAccess{queue: queue, holder: holder})
	b.mu.Unlock()

	b.accessesChanged.Store(true)
	b.wakeUp()
}

func (b *SimulationBus) removeAccess(queue *readerItemQueue) {
	b.mu.Lock()
	for i, access := range b.accesses {
		if access.queue == queue {
			b.accesses = append(b.accesses[:i], b.accesses[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	b.accessesChanged.Store(true)
	b.wakeUp()
}

// rebuildWaitSet snapshots the attached readers and hooks their signals
// to the guard condition. Runs on the reception thread only.
func (b *SimulationBus) rebuildWaitSet() []*dataAccess {
	b.mu.Lock()
	snapshot := make([]*dataAccess, len(b.accesses))
	copy(snapshot, b.accesses)
	b.mu.Unlock()

	for _, access := range snapshot {
		access.queue.setSignals(b.wakeUp, func() {
			b.accessesChanged.Store(true)
			b.wakeUp()
		})
	}
	b.accessesChanged.Store(false)
	return snapshot
}

// StartBlockingReception runs the reception loop until
// StopBlockingReception is called. The prepared callback fires exactly
// once, after the first wait-set was built; reception is then ready for
// data and for a stop request. Reader handler errors never leave the
// loop.
func (b *SimulationBus) StartBlockingReception(prepared func()) {
	if !b.receiving.CompareAndSwap(false, true) {
		if prepared != nil {
			prepared()
		}
		return
	}

	var pool *receptionPool
	if b.cfg.UseAsyncWaitset {
		pool = newReceptionPool(b.cfg.AsyncWaitsetThreads)
		defer pool.stop()
	}

	accesses := b.rebuildWaitSet()
	if prepared != nil {
		prepared()
		prepared = nil
	}

	for b.receiving.Load() {
		select {
		case <-b.wake:
		case <-time.After(receptionWaitTimeout):
		}
		if !b.receiving.Load() {
			break
		}
		if b.accessesChanged.Load() {
			accesses = b.rebuildWaitSet()
		}
		b.dispatch(accesses, pool)
	}
}

// dispatch drives every ready reader, inline or on the pool.
func (b *SimulationBus) dispatch(accesses []*dataAccess, pool *receptionPool) {
	for _, access := range accesses {
		if !access.queue.hasData() {
			continue
		}
		if pool == nil {
			b.drain(access)
			continue
		}
		if access.busy.CompareAndSwap(false, true) {
			a := access
			pool.submit(func() {
				defer a.busy.Store(false)
				b.drain(a)
			})
		}
	}
}

// drain pops until the reader has no pending items. A panicking handler
// is caught and logged; the loop continues.
func (b *SimulationBus) drain(access *dataAccess) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("reception handler failed", "panic", r)
		}
	}()
	for access.queue.pop(access.holder) {
	}
}

// StopBlockingReception requests the reception loop to end and trips
// the guard condition.
func (b *SimulationBus) StopBlockingReception() {
	b.receiving.Store(false)
	b.wakeUp()
}

// receptionPool is the fixed-size worker pool of the pool-backed
// strategy.
type receptionPool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newReceptionPool(workers int) *receptionPool {
	p := &receptionPool{tasks: make(chan func(), workers*4)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

func (p *receptionPool) submit(task func()) {
	p.tasks <- task
}

func (p *receptionPool) stop() {
	close(p.tasks)
	p.wg.Wait()
}

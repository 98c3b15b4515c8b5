package clock

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/simnode"
)

// Clock sync event ids on the wire.
const (
	EventIDTimeUpdateBefore = 0
	EventIDTimeUpdating     = 1
	EventIDTimeUpdateAfter  = 2
	EventIDTimeReset        = 3
)

// Event mask bits a client registers for.
const (
	MaskTimeUpdateBefore = 1 << 0
	MaskTimeUpdating     = 1 << 1
	MaskTimeUpdateAfter  = 1 << 2
	MaskTimeReset        = 1 << 3
	MaskAll              = MaskTimeUpdateBefore | MaskTimeUpdating | MaskTimeUpdateAfter | MaskTimeReset
)

// TimeUpdateTimeoutMin is the lower clamp for the per-event budget of
// the clock master.
const TimeUpdateTimeoutMin = 50 * time.Millisecond

// DefaultTimeUpdateTimeout is the per-event budget used when none is
// configured.
const DefaultTimeUpdateTimeout = 5 * time.Second

// SyncClient invokes the clock sync RPC on one remote time client.
// Arguments are encoded as decimal strings on the wire.
type SyncClient interface {
	SyncTimeEvent(eventID int, newTime, arg1, arg2 string) (string, error)
}

// RequesterResolver resolves a client name to its RPC handle via the
// service bus, returning nil when the name is unknown.
type RequesterResolver func(clientName string) SyncClient

// rpcErrorResponse marks errors that represent an error response from
// the remote end (as opposed to a transport failure). Such a response
// deactivates the client.
type rpcErrorResponse interface {
	RPCErrorCode() int
}

// asyncExecutor runs enqueued tasks on a single goroutine in FIFO
// order. Stop discards pending tasks and joins the goroutine; tasks
// enqueued after stop are reported as deferred.
type asyncExecutor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	done    chan struct{}
}

func newAsyncExecutor() *asyncExecutor {
	e := &asyncExecutor{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.executionLoop()
	return e
}

func (e *asyncExecutor) executionLoop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if e.stopped {
			e.mu.Unlock()
			return
		}
		task := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		task()
	}
}

// enqueue submits fn and returns a future resolving to its error. The
// second return value is false when the executor has stopped and the
// task will never be dispatched.
func (e *asyncExecutor) enqueue(fn func() error) (<-chan error, bool) {
	future := make(chan error, 1)
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return future, false
	}
	e.queue = append(e.queue, func() {
		future <- fn()
	})
	e.mu.Unlock()
	e.cond.Signal()
	return future, true
}

func (e *asyncExecutor) stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.cond.Signal()
	<-e.done
}

// clientEntry is one registered remote time client: its RPC handle, the
// active flag, the event mask and the single-thread task queue isolating
// this client's RPC calls from the others.
type clientEntry struct {
	name   string
	client SyncClient
	active atomic.Bool
	mask   atomic.Int32
	exec   *asyncExecutor
}

func (c *clientEntry) destroy() {
	c.exec.stop()
}

// MainEventSink is the clock master: it distributes each time event to
// the configured set of remote time clients in parallel, bounded by a
// single absolute per-event deadline. The event callbacks are
// synchronous from the caller's perspective; they return only when every
// client has either responded or timed out.
type MainEventSink struct {
	mu       sync.Mutex
	clients  map[string]*clientEntry
	timeout  time.Duration
	logger   simnode.Logger
	resolver RequesterResolver
}

// NewMainEventSink creates a clock master resolving client requesters
// through resolver. The timeout is clamped to TimeUpdateTimeoutMin.
func NewMainEventSink(logger simnode.Logger, timeout time.Duration, resolver RequesterResolver) *MainEventSink {
	if logger == nil {
		logger = simnode.NopLogger{}
	}
	return &MainEventSink{
		clients:  make(map[string]*clientEntry),
		timeout:  validateTimeout(logger, timeout),
		logger:   logger,
		resolver: resolver,
	}
}

func validateTimeout(logger simnode.Logger, timeout time.Duration) time.Duration {
	if timeout < TimeUpdateTimeoutMin {
		logger.Warn("configured time_update_timeout is below minimum, using minimum value instead",
			"configured", timeout, "minimum", TimeUpdateTimeoutMin)
		return TimeUpdateTimeoutMin
	}
	return timeout
}

// RegisterClient resolves the client's requester and activates it. A
// known name has its event mask updated and is reactivated.
func (m *MainEventSink) RegisterClient(clientName string, eventMask int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client := m.resolver(clientName)
	if client == nil {
		return fmt.Errorf("rpc requester for client %q: %w", clientName, simnode.ErrNotFound)
	}

	if entry, ok := m.clients[clientName]; ok {
		entry.mask.Store(int32(eventMask))
		entry.active.Store(true)
		return nil
	}

	entry := &clientEntry{name: clientName, client: client, exec: newAsyncExecutor()}
	entry.mask.Store(int32(eventMask))
	entry.active.Store(true)
	m.clients[clientName] = entry
	return nil
}

// UnregisterClient deactivates a client. The entry stays in the map so a
// later RegisterClient reuses it.
func (m *MainEventSink) UnregisterClient(clientName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.clients[clientName]
	if !ok {
		return fmt.Errorf("a client with name %q was not found: %w", clientName, simnode.ErrNotFound)
	}
	entry.active.Store(false)
	return nil
}

// ReceiveClientSyncedEvent accepts a slave's synced notification.
func (m *MainEventSink) ReceiveClientSyncedEvent(clientName string, t simnode.Timestamp) error {
	return nil
}

// UpdateTimeout reconfigures the per-event budget, clamped to the
// minimum.
func (m *MainEventSink) UpdateTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = validateTimeout(m.logger, timeout)
	return nil
}

// Close destroys all client entries. Their executors are stopped and
// joined; tasks still queued in them are discarded.
func (m *MainEventSink) Close() {
	m.mu.Lock()
	entries := make([]*clientEntry, 0, len(m.clients))
	for _, e := range m.clients {
		entries = append(entries, e)
	}
	m.clients = make(map[string]*clientEntry)
	m.mu.Unlock()

	for _, e := range entries {
		e.destroy()
	}
}

type pendingSync struct {
	entry  *clientEntry
	future <-chan error
}

// synchronize enqueues the RPC call into every active client's executor
// whose mask includes maskBit, then waits for each future until the
// single absolute deadline. The client-map mutex is held while
// enqueueing but not while waiting.
func (m *MainEventSink) synchronize(maskBit int, fn func(SyncClient) error) error {
	m.mu.Lock()
	timeout := m.timeout
	pending := make([]pendingSync, 0, len(m.clients))
	for _, entry := range m.clients {
		if !entry.active.Load() {
			continue
		}
		if int(entry.mask.Load())&maskBit == 0 {
			continue
		}
		client := entry.client
		future, ok := entry.exec.enqueue(func() error {
			return fn(client)
		})
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("synchronization task for client %q was deferred: %w",
				entry.name, simnode.ErrUnexpected)
		}
		pending = append(pending, pendingSync{entry: entry, future: future})
	}
	m.mu.Unlock()

	m.waitUntilSyncFinish(pending, time.Now().Add(timeout))
	return nil
}

func (m *MainEventSink) waitUntilSyncFinish(pending []pendingSync, deadline time.Time) {
	for _, sync := range pending {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)
		select {
		case err := <-sync.future:
			timer.Stop()
			if err == nil {
				continue
			}
			var rpcErr rpcErrorResponse
			if errors.As(err, &rpcErr) {
				m.logger.Error("an error occurred during synchronization of client, "+
					"invalid response received, client will be deactivated",
					"client", sync.entry.name, "error", err)
				sync.entry.active.Store(false)
			} else {
				m.logger.Error("synchronizing client failed",
					"client", sync.entry.name, "error", err)
			}
		case <-timer.C:
			// The RPC task keeps running in the background; its result
			// is ignored and the client stays active.
			m.logger.Error("a timeout occurred while synchronizing the client, "+
				"the client might take too long to respond or be unreachable",
				"client", sync.entry.name)
		}
	}
}

func (m *MainEventSink) synchronizeEvent(maskBit int, message string, fn func(SyncClient) error) {
	if err := m.synchronize(maskBit, fn); err != nil {
		m.logger.Error(message, "error", err)
	}
}

func decimal(t simnode.Timestamp) string {
	return strconv.FormatInt(int64(t), 10)
}

func (m *MainEventSink) TimeUpdateBegin(oldTime, newTime simnode.Timestamp) {
	m.synchronizeEvent(MaskTimeUpdateBefore,
		fmt.Sprintf("an error occurred during time_update_before at time %d", newTime),
		func(c SyncClient) error {
			_, err := c.SyncTimeEvent(EventIDTimeUpdateBefore, decimal(newTime), decimal(oldTime), "")
			return err
		})
}

func (m *MainEventSink) TimeUpdating(newTime simnode.Timestamp, nextTick *simnode.Timestamp) {
	var nextTickStr string
	if nextTick != nil {
		nextTickStr = decimal(*nextTick)
	}
	m.synchronizeEvent(MaskTimeUpdating,
		fmt.Sprintf("an error occurred during time_updating at time %d", newTime),
		func(c SyncClient) error {
			_, err := c.SyncTimeEvent(EventIDTimeUpdating, decimal(newTime), nextTickStr, "0")
			return err
		})
}

func (m *MainEventSink) TimeUpdateEnd(newTime simnode.Timestamp) {
	m.synchronizeEvent(MaskTimeUpdateAfter,
		fmt.Sprintf("an error occurred during time_update_after at time %d", newTime),
		func(c SyncClient) error {
			_, err := c.SyncTimeEvent(EventIDTimeUpdateAfter, decimal(newTime), "0", "")
			return err
		})
}

func (m *MainEventSink) TimeResetBegin(oldTime, newTime simnode.Timestamp) {
	m.synchronizeEvent(MaskTimeReset,
		fmt.Sprintf("an error occurred during time_reset at old time %d", oldTime),
		func(c SyncClient) error {
			_, err := c.SyncTimeEvent(EventIDTimeReset, decimal(newTime), decimal(oldTime), "")
			return err
		})
}

func (m *MainEventSink) TimeResetEnd(newTime simnode.Timestamp) {
	// Deliberately not distributed to clients.
}

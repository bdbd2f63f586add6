// Package registry provides the process-wide table of per-guild session state.
//
// Every read or write of a guild's queue, repeat slot, monitor handle or
// reconnection flag happens inside Do, which holds that guild's lock for the
// duration of the callback. Guilds never contend with each other.
package registry

import (
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vcbox/internal/app/queue"
	"github.com/osa030/vcbox/internal/app/repeat"
	"github.com/osa030/vcbox/internal/domain/guild"
	"github.com/osa030/vcbox/internal/domain/track"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("registry is closed")

// Handle is the liveness marker of a guild's finish-detection monitor.
type Handle interface {
	ID() string
	// Wake asks the monitor to evaluate a tick now.
	Wake()
	// Stop asks the monitor to exit. It does not wait.
	Stop()
	// Done is closed once the monitor has exited.
	Done() <-chan struct{}
}

type entry struct {
	mu   sync.Mutex
	refs int // guarded by Registry.mu

	queue        *queue.Queue
	repeat       repeat.State
	monitor      Handle
	reconnecting bool
}

func (e *entry) idle() bool {
	return e.queue == nil && e.repeat.Off() && e.monitor == nil && !e.reconnecting
}

// Registry maps guild IDs to session state.
type Registry struct {
	mu       sync.Mutex
	guilds   map[guild.ID]*entry
	monitors map[guild.ID]Handle // mirrors entry.monitor, readable without the guild lock
	closed   bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		guilds:   make(map[guild.ID]*entry),
		monitors: make(map[guild.ID]Handle),
	}
}

// Monitor returns the guild's live monitor handle without taking the guild
// lock, so callers can signal a monitor whose tick is blocked on the node.
func (r *Registry) Monitor(id guild.ID) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitors[id]
}

func (r *Registry) setMonitor(id guild.ID, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.monitors, id)
		return
	}
	r.monitors[id] = h
}

// Do runs fn with exclusive access to the guild's state.
// fn must not call Do for the same guild.
func (r *Registry) Do(id guild.ID, fn func(tx *Tx) error) error {
	e, err := r.acquire(id)
	if err != nil {
		return err
	}
	defer r.release(id, e)

	e.mu.Lock()
	defer e.mu.Unlock()

	err = fn(&Tx{guild: id, e: e, r: r})

	// An entry is never left holding an empty queue.
	if e.queue != nil && e.queue.Empty() {
		e.queue = nil
	}
	return err
}

func (r *Registry) acquire(id guild.ID) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	e, ok := r.guilds[id]
	if !ok {
		e = &entry{}
		r.guilds[id] = e
	}
	e.refs++
	return e, nil
}

func (r *Registry) release(id guild.ID, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return
	}
	// refs == 0 means nobody else can be holding or waiting on e.mu.
	if e.idle() {
		delete(r.guilds, id)
	}
}

// Guilds returns the IDs of guilds that currently hold state, sorted.
func (r *Registry) Guilds() []guild.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]guild.ID, 0, len(r.guilds))
	for id := range r.guilds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// View is a read-only copy of one guild's state.
type View struct {
	Guild        guild.ID
	Queue        []track.Track
	Repeat       repeat.State
	MonitorID    string
	Reconnecting bool
}

// Snapshot returns a consistent per-guild copy of every guild's state.
func (r *Registry) Snapshot() []View {
	ids := r.Guilds()
	views := make([]View, 0, len(ids))
	for _, id := range ids {
		var v View
		err := r.Do(id, func(tx *Tx) error {
			v = tx.View()
			return nil
		})
		if err != nil {
			break
		}
		views = append(views, v)
	}
	return views
}

// Close stops every live monitor and rejects further Do calls. The returned
// handles can be waited on through Done.
func (r *Registry) Close() []Handle {
	r.mu.Lock()
	r.closed = true
	handles := make([]Handle, 0, len(r.monitors))
	for _, h := range r.monitors {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	return handles
}

// Tx is a guild's state as seen from inside Do. It must not escape the callback.
type Tx struct {
	guild guild.ID
	e     *entry
	r     *Registry
}

// Guild returns the guild this transaction is bound to.
func (tx *Tx) Guild() guild.ID {
	return tx.guild
}

// Queue returns the guild's queue, or nil when there is no entry.
// An empty queue is reported as nil.
func (tx *Tx) Queue() *queue.Queue {
	if tx.e.queue == nil || tx.e.queue.Empty() {
		return nil
	}
	return tx.e.queue
}

// QueueLen returns the number of pending tracks.
func (tx *Tx) QueueLen() int {
	if q := tx.Queue(); q != nil {
		return q.Len()
	}
	return 0
}

// Enqueue appends tracks, creating the queue entry on first write.
func (tx *Tx) Enqueue(tracks ...track.Track) {
	if len(tracks) == 0 {
		return
	}
	if tx.e.queue == nil {
		tx.e.queue = queue.New()
	}
	tx.e.queue.Enqueue(tracks...)
}

// Dequeue removes the head track. The entry is removed once it becomes empty.
func (tx *Tx) Dequeue() (track.Track, error) {
	q := tx.Queue()
	if q == nil {
		return track.Track{}, queue.ErrEmptyQueue
	}
	t, err := q.Dequeue()
	if q.Empty() {
		tx.e.queue = nil
	}
	return t, err
}

// Shuffle permutes the pending tracks. A nil r uses the global source.
func (tx *Tx) Shuffle(r *rand.Rand) error {
	q := tx.Queue()
	if q == nil {
		return queue.ErrEmptyQueue
	}
	q.Shuffle(r)
	return nil
}

// ClearQueue removes the queue entry.
func (tx *Tx) ClearQueue() {
	tx.e.queue = nil
}

// Repeat returns the guild's repeat state.
func (tx *Tx) Repeat() repeat.State {
	return tx.e.repeat
}

// SetRepeat replaces the repeat state.
func (tx *Tx) SetRepeat(s repeat.State) {
	tx.e.repeat = s
}

// ClearRepeat turns repeat off and reports whether it was on.
func (tx *Tx) ClearRepeat() bool {
	was := !tx.e.repeat.Off()
	tx.e.repeat = repeat.State{}
	return was
}

// Monitor returns the live monitor handle, or nil.
func (tx *Tx) Monitor() Handle {
	return tx.e.monitor
}

// StartMonitor installs the handle built by newHandle unless one is already
// live. It returns the installed handle and true, or the existing handle and
// false. newHandle is not called when a monitor is live.
func (tx *Tx) StartMonitor(newHandle func() Handle) (Handle, bool) {
	if tx.e.monitor != nil {
		return tx.e.monitor, false
	}
	h := newHandle()
	tx.e.monitor = h
	tx.r.setMonitor(tx.guild, h)
	return h, true
}

// RemoveMonitor clears the handle if it is h. It reports whether it did.
func (tx *Tx) RemoveMonitor(h Handle) bool {
	if tx.e.monitor == nil || h == nil || tx.e.monitor.ID() != h.ID() {
		return false
	}
	tx.e.monitor = nil
	tx.r.setMonitor(tx.guild, nil)
	return true
}

// Reconnecting reports whether a voice rejoin is in progress.
func (tx *Tx) Reconnecting() bool {
	return tx.e.reconnecting
}

// SetReconnecting sets or clears the reconnection flag.
func (tx *Tx) SetReconnecting(v bool) {
	tx.e.reconnecting = v
}

// View copies the guild's state.
func (tx *Tx) View() View {
	v := View{
		Guild:        tx.guild,
		Repeat:       tx.e.repeat,
		Reconnecting: tx.e.reconnecting,
	}
	if q := tx.Queue(); q != nil {
		v.Queue = q.List()
	}
	if tx.e.monitor != nil {
		v.MonitorID = tx.e.monitor.ID()
	}
	return v
}

// Package queue provides the per-guild FIFO of pending tracks.
//
// A Queue carries no lock of its own. It is only reachable through the
// session registry, which serializes every access for a guild.
package queue

import (
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vcbox/internal/domain/track"
)

// ErrEmptyQueue is returned by Dequeue when no track is pending.
var ErrEmptyQueue = errors.New("queue is empty")

// Queue is an ordered sequence of tracks with FIFO semantics.
type Queue struct {
	tracks []track.Track
}

// New creates a queue holding tracks in the given order.
func New(tracks ...track.Track) *Queue {
	q := &Queue{}
	q.tracks = append(q.tracks, tracks...)
	return q
}

// Enqueue appends tracks at the tail.
func (q *Queue) Enqueue(tracks ...track.Track) {
	q.tracks = append(q.tracks, tracks...)
}

// Dequeue removes and returns the head.
func (q *Queue) Dequeue() (track.Track, error) {
	if len(q.tracks) == 0 {
		return track.Track{}, ErrEmptyQueue
	}
	head := q.tracks[0]
	q.tracks[0] = track.Track{}
	q.tracks = q.tracks[1:]
	return head, nil
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (track.Track, bool) {
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	return q.tracks[0], true
}

// Shuffle replaces the contents with a uniformly random permutation
// (Fisher–Yates). A nil r uses the global source.
func (q *Queue) Shuffle(r *rand.Rand) {
	for i := len(q.tracks) - 1; i > 0; i-- {
		var j int
		if r != nil {
			j = r.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	}
}

// List returns a copy of the pending tracks in play order.
func (q *Queue) List() []track.Track {
	out := make([]track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// Empty reports whether no track is pending.
func (q *Queue) Empty() bool {
	return len(q.tracks) == 0
}

// TotalDuration sums the duration of pending tracks.
func (q *Queue) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range q.tracks {
		total += t.Duration
	}
	return total
}

// ABOUTME: Playback-position-driven cue scheduler
// ABOUTME: Advances a cursor over the sorted cue list, emitting due cues once
package scheduler

import (
	"container/heap"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Open-Lights/OpenLightsCore/pkg/beatfile"
)

// Sink receives due cues. The dispatch layer implements it; tests use a
// recording fake. Implementations must not block: the scheduler tick
// runs on the timing loop.
type Sink interface {
	Dispatch(deviceID string, at time.Duration, payload json.RawMessage)
}

// Scheduler walks a show's cue list as the playback clock advances.
// It is not safe for concurrent use: all calls happen on the clock
// adapter's control loop, which owns the cursor and revert bookkeeping.
type Scheduler struct {
	sink Sink
	log  *slog.Logger

	show    *beatfile.Show
	cursor  int
	reverts revertQueue
	emitted int64

	// published counters; the cursor itself is never shared
	statsMu sync.Mutex
	stats   Stats
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Emitted        int64
	PendingReverts int
	Remaining      int
}

// New creates a scheduler feeding the given sink.
func New(sink Sink, log *slog.Logger) *Scheduler {
	return &Scheduler{sink: sink, log: log}
}

// Start loads a show and resets the cursor for a fresh playback pass.
func (s *Scheduler) Start(show *beatfile.Show) {
	s.show = show
	s.cursor = 0
	s.reverts = s.reverts[:0]
	s.publish()
	s.log.Info("show scheduled",
		"show", show.Name,
		"cues", len(show.Cues),
		"duration", show.Duration,
	)
}

// Show returns the loaded show, nil if none.
func (s *Scheduler) Show() *beatfile.Show {
	return s.show
}

// Tick emits every cue due at the given playback position, in ascending
// timestamp order, and returns how many dispatches were issued. Cues
// sharing a timestamp go out in file order. Reverts for cues carrying a
// duration merge into the same ordering by their end timestamp, ahead
// of cues due at the identical instant.
//
// Tick never fails: backend errors surface on the dispatcher's event
// channel, not here, so a dead light cannot stall playback.
func (s *Scheduler) Tick(pos time.Duration) int {
	if s.show == nil {
		return 0
	}

	n := 0
	for {
		revertDue := len(s.reverts) > 0 && s.reverts[0].at <= pos
		cueDue := s.cursor < len(s.show.Cues) && s.show.Cues[s.cursor].At <= pos

		switch {
		case revertDue && (!cueDue || s.reverts[0].at <= s.show.Cues[s.cursor].At):
			r := heap.Pop(&s.reverts).(revert)
			s.sink.Dispatch(r.device, r.at, nil)
			n++

		case cueDue:
			cue := s.show.Cues[s.cursor]
			s.cursor++
			s.sink.Dispatch(cue.Device, cue.At, cue.Command)
			if cue.Duration > 0 {
				heap.Push(&s.reverts, revert{device: cue.Device, at: cue.At + cue.Duration})
			}
			n++

		default:
			s.emitted += int64(n)
			s.publish()
			return n
		}
	}
}

// Seek repositions the cursor to the first cue after the new position.
// Cues at or before it are not re-emitted: physical devices may already
// hold a later state, and replaying would flicker. Pending reverts are
// discarded.
func (s *Scheduler) Seek(pos time.Duration) {
	if s.show == nil {
		return
	}
	cues := s.show.Cues
	s.cursor = sort.Search(len(cues), func(i int) bool {
		return cues[i].At > pos
	})
	s.reverts = s.reverts[:0]
	s.publish()
}

// Stop resets the cursor to the top of the show and clears pending
// reverts. A following Start replays from the beginning.
func (s *Scheduler) Stop() {
	s.cursor = 0
	s.reverts = s.reverts[:0]
	s.publish()
}

// publish snapshots counters for concurrent Stats readers.
func (s *Scheduler) publish() {
	remaining := 0
	if s.show != nil {
		remaining = len(s.show.Cues) - s.cursor
	}
	s.statsMu.Lock()
	s.stats = Stats{
		Emitted:        s.emitted,
		PendingReverts: len(s.reverts),
		Remaining:      remaining,
	}
	s.statsMu.Unlock()
}

// Stats returns the latest published counters. Unlike the other
// methods it is safe to call from any goroutine.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// revert is an implicit "off" dispatch owed for a cue with a duration.
type revert struct {
	device string
	at     time.Duration
}

// revertQueue is a min-heap ordered by end timestamp.
type revertQueue []revert

func (q revertQueue) Len() int            { return len(q) }
func (q revertQueue) Less(i, j int) bool  { return q[i].at < q[j].at }
func (q revertQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *revertQueue) Push(x interface{}) { *q = append(*q, x.(revert)) }

func (q *revertQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

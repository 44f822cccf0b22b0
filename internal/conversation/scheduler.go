package conversation

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linguakid/linguakid/pkg/audio"
)

// Output renders decoded buffers on an audio device. Play starts the
// buffer immediately and invokes done exactly once when it finishes
// naturally. The returned Source stops it early; stopping a finished
// source is a no-op.
type Output interface {
	Play(buf *audio.PlaybackBuffer, done func()) (Source, error)
	Close() error
}

// Source is one buffer currently connected to the output device.
type Source interface {
	Stop()
}

// Scheduler plays an unbounded stream of arbitrarily chunked buffers
// back to back with no gap and no overlap. The first chunk of each
// model turn is held back by the lead time, and Flush cancels
// everything queued or playing in one call.
type Scheduler struct {
	logger   *zap.Logger
	clock    Clock
	output   Output
	leadTime time.Duration

	mu               sync.Mutex
	nextFreeSlot     time.Time
	firstChunkOfTurn bool
	live             map[*scheduledSource]struct{}
}

type scheduledSource struct {
	buf    *audio.PlaybackBuffer
	timer  Timer
	source Source
}

// NewScheduler creates a Scheduler bound to the given output device.
func NewScheduler(logger *zap.Logger, clock Clock, output Output, leadTime time.Duration) *Scheduler {
	if leadTime <= 0 {
		leadTime = DefaultLeadTime
	}

	return &Scheduler{
		logger:           logger,
		clock:            clock,
		output:           output,
		leadTime:         leadTime,
		nextFreeSlot:     clock.Now(),
		firstChunkOfTurn: true,
		live:             make(map[*scheduledSource]struct{}),
	}
}

// Enqueue schedules buf for gapless playback and returns its computed
// start time.
func (s *Scheduler) Enqueue(buf *audio.PlaybackBuffer) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.firstChunkOfTurn {
		s.nextFreeSlot = now.Add(s.leadTime)
		s.firstChunkOfTurn = false
	}

	startAt := s.nextFreeSlot
	if startAt.Before(now) {
		startAt = now
	}

	src := &scheduledSource{buf: buf}
	s.live[src] = struct{}{}
	s.nextFreeSlot = startAt.Add(buf.Duration())

	src.timer = s.clock.AfterFunc(startAt.Sub(now), func() {
		s.startSource(src)
	})

	s.logger.Debug("Scheduled playback buffer",
		zap.Duration("duration", buf.Duration()),
		zap.Duration("delay", startAt.Sub(now)),
		zap.Int("live_sources", len(s.live)))

	return startAt
}

func (s *Scheduler) startSource(src *scheduledSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Flushed between scheduling and start.
	if _, ok := s.live[src]; !ok {
		return
	}

	source, err := s.output.Play(src.buf, func() {
		s.finishSource(src)
	})
	if err != nil {
		delete(s.live, src)
		s.logger.Warn("Failed to start playback source", zap.Error(err))

		return
	}
	src.source = source
}

func (s *Scheduler) finishSource(src *scheduledSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, src)
}

// Flush forcibly stops every live source, clears the queue, and resets
// the timeline so the next buffer starts a fresh turn. This is the
// barge-in path and takes effect before any further buffer can be
// scheduled.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for src := range s.live {
		if src.timer != nil {
			src.timer.Stop()
		}
		if src.source != nil {
			src.source.Stop()
		}
	}
	s.live = make(map[*scheduledSource]struct{})
	s.nextFreeSlot = s.clock.Now()
	s.firstChunkOfTurn = true
}

// MarkTurnBoundary makes the next buffer incur the lead time again.
// Called when a user transcript fragment arrives, since the user
// talking means the model's current turn is over.
func (s *Scheduler) MarkTurnBoundary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstChunkOfTurn = true
}

// LiveCount reports how many sources are scheduled or playing.
func (s *Scheduler) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.live)
}

// Close flushes pending playback and releases the output device.
func (s *Scheduler) Close() error {
	s.Flush()

	return s.output.Close()
}

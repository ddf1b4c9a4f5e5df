package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

// IdleMessage is sent to a session the sweeper closes.
const IdleMessage = "You have been idle too long. Goodbye."

// Sweeper closes sessions that have been idle longer than a limit, checking
// on a cron schedule.
type Sweeper struct {
	dir      *Directory
	schedule string
	idle     time.Duration
	log      *zap.Logger
	onSweep  func(n int)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper validates schedule and returns a stopped sweeper.
func NewSweeper(dir *Directory, schedule string, idle time.Duration, log *zap.Logger) (*Sweeper, error) {
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("%q: %w", schedule, ErrInvalidSchedule)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{dir: dir, schedule: schedule, idle: idle, log: log}, nil
}

// OnSweep registers a callback that receives the number of sessions closed
// by each run.
func (s *Sweeper) OnSweep(fn func(n int)) {
	s.onSweep = fn
}

// Sweep kicks every online character idle longer than the limit at now and
// returns how many were kicked.
func (s *Sweeper) Sweep(now time.Time) int {
	if s.idle <= 0 {
		return 0
	}
	n := 0
	for _, c := range s.dir.Online() {
		if c.IdleFor(now) < s.idle {
			continue
		}
		if err := c.Kick(IdleMessage); err != nil {
			s.log.Debug("kick idle session", zap.String("name", c.Name()), zap.Error(err))
			continue
		}
		n++
	}
	if n > 0 {
		s.log.Info("idle sessions closed", zap.Int("count", n))
	}
	if s.onSweep != nil {
		s.onSweep(n)
	}
	return n
}

// Start runs Sweep at every tick of the schedule until ctx ends or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop ends the loop and waits for it.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := s.dir.now()
		next, err := gronx.NextTickAfter(s.schedule, now, false)
		wait := next.Sub(now)
		if err != nil {
			s.log.Error("next sweep tick", zap.String("schedule", s.schedule), zap.Error(err))
			wait = time.Minute
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(s.dir.now())
		}
	}
}

package schedule

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/querypad/querypad-backend/internal/events"
	"github.com/querypad/querypad-backend/internal/queries/repository"
)

// ScheduledSource lists scheduled queries with their latest refresh time.
type ScheduledSource interface {
	Scheduled(ctx context.Context) ([]repository.ScheduledQuery, error)
}

// Sweeper walks scheduled queries once a minute and enqueues a refresh
// event for every outdated one. Execution itself happens elsewhere; the
// sweep only decides what is due.
type Sweeper struct {
	source   ScheduledSource
	recorder events.Recorder
	cron     *cron.Cron
}

func NewSweeper(source ScheduledSource, recorder events.Recorder) *Sweeper {
	return &Sweeper{
		source:   source,
		recorder: recorder,
		cron:     cron.New(),
	}
}

func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("* * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if n, err := s.SweepOnce(ctx); err != nil {
			log.Printf("schedule: sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("schedule: enqueued %d refresh(es)", n)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.Println("schedule: sweeper started (every minute)")
	return nil
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// SweepOnce enqueues refreshes for currently outdated queries and
// returns how many it found. Duplicate suppression per query hash keeps
// two queries with identical text and data source from refreshing twice.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	scheduled, err := s.source.Scheduled(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	seen := make(map[string]bool, len(scheduled))
	enqueued := 0

	for _, sq := range scheduled {
		if !ShouldScheduleNext(sq.RetrievedAt, now, sq.Query.Schedule) {
			continue
		}

		key := sq.Query.QueryHash
		if seen[key] {
			continue
		}
		seen[key] = true

		e := events.New("scheduler", "refresh", "query", strconv.FormatInt(sq.Query.ID, 10))
		e.AdditionalProperties = map[string]interface{}{"query_hash": sq.Query.QueryHash}
		if err := s.recorder.Record(ctx, e); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

package trends

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"trendseer/internal/observability"
	"trendseer/internal/tools"
)

const maxSnapshotTopics = 20

// Snapshot is the last refreshed topic list.
type Snapshot struct {
	Topics     []string  `json:"topics"`
	Industries []string  `json:"industries"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// Refresher searches each seed industry on a cron schedule and keeps the
// merged trending topics in memory.
type Refresher struct {
	search     tools.Searcher
	industries []string
	schedule   string

	mu       sync.RWMutex
	snapshot Snapshot

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *observability.Logger
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func NewRefresher(search tools.Searcher, industries []string, schedule string) (*Refresher, error) {
	if schedule == "" {
		schedule = "@every 1h"
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("trends: invalid refresh schedule %q: %w", schedule, err)
	}
	return &Refresher{
		search:     search,
		industries: slices.Clone(industries),
		schedule:   schedule,
		snapshot:   Snapshot{Topics: []string{}, Industries: slices.Clone(industries)},
		log:        observability.Component("trends.refresh"),
	}, nil
}

// Start schedules the refresh job and runs one refresh right away in the
// background.
func (r *Refresher) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	r.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := r.cron.AddFunc(r.schedule, func() { r.Refresh(ctx) }); err != nil {
		r.cancel()
		return fmt.Errorf("trends: schedule refresh: %w", err)
	}
	r.cron.Start()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Refresh(ctx)
	}()
	r.log.Info(ctx, "trend refresher started", "schedule", r.schedule, "industries", len(r.industries))
	return nil
}

// Stop cancels in-flight refreshes and waits for them, up to 10 seconds.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	done := make(chan struct{})
	go func() {
		if r.cron != nil {
			<-r.cron.Stop().Done()
		}
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		r.log.Warn(context.Background(), "trend refresher stop timed out")
	}
}

// Refresh searches every seed industry and replaces the snapshot. A refresh
// that yields no topics keeps the previous snapshot.
func (r *Refresher) Refresh(ctx context.Context) Snapshot {
	ctx, span := observability.StartSpan(ctx, "trends.refresh")
	defer span.End()

	results := make([][]string, len(r.industries))
	var wg sync.WaitGroup
	for i, industry := range r.industries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.search.Search(ctx, "latest trends", []string{industry})
			if res.Error != "" {
				r.log.Warn(ctx, "trend search failed", "industry", industry, "error", res.Error)
				return
			}
			results[i] = res.TrendingTopics
		}()
	}
	wg.Wait()

	topics := []string{}
	for _, list := range results {
		for _, topic := range list {
			if len(topics) == maxSnapshotTopics {
				break
			}
			if !slices.Contains(topics, topic) {
				topics = append(topics, topic)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(topics) == 0 {
		r.log.Debug(ctx, "refresh found no topics, keeping snapshot")
		return r.snapshot
	}
	r.snapshot = Snapshot{Topics: topics, Industries: slices.Clone(r.industries), UpdatedAt: time.Now().UTC()}
	r.log.Info(ctx, "trending topics refreshed", "topics", len(topics))
	return r.snapshot
}

func (r *Refresher) Topics() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.snapshot
	s.Topics = slices.Clone(s.Topics)
	s.Industries = slices.Clone(s.Industries)
	return s
}

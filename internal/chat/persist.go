package chat

import (
	"context"
	"sync"

	"trendseer/internal/prompt"
)

type turnRecord struct {
	userID   string
	messages []prompt.Message
	question string
	reply    string
}

type pendingTurn struct {
	ctx context.Context
	rec turnRecord
}

// persistQueue runs post-turn writes in the background, one user at a time
// in arrival order, so consecutive turns of a user land in order.
type persistQueue struct {
	handle func(ctx context.Context, rec turnRecord)

	mu     sync.Mutex
	busy   map[string]bool
	queued map[string][]pendingTurn
	wg     sync.WaitGroup
}

func newPersistQueue(handle func(ctx context.Context, rec turnRecord)) *persistQueue {
	return &persistQueue{
		handle: handle,
		busy:   make(map[string]bool),
		queued: make(map[string][]pendingTurn),
	}
}

func (q *persistQueue) enqueue(ctx context.Context, rec turnRecord) {
	q.mu.Lock()
	q.wg.Add(1)
	if q.busy[rec.userID] {
		q.queued[rec.userID] = append(q.queued[rec.userID], pendingTurn{ctx: ctx, rec: rec})
		q.mu.Unlock()
		return
	}
	q.busy[rec.userID] = true
	q.mu.Unlock()

	go q.drain(ctx, rec)
}

func (q *persistQueue) drain(ctx context.Context, rec turnRecord) {
	q.handle(ctx, rec)
	q.wg.Done()

	for {
		q.mu.Lock()
		pending := q.queued[rec.userID]
		if len(pending) == 0 {
			delete(q.busy, rec.userID)
			delete(q.queued, rec.userID)
			q.mu.Unlock()
			return
		}
		next := pending[0]
		q.queued[rec.userID] = pending[1:]
		q.mu.Unlock()

		q.handle(next.ctx, next.rec)
		q.wg.Done()
	}
}

// pending returns the number of writes queued behind a running one.
func (q *persistQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, p := range q.queued {
		n += len(p)
	}
	return n
}

func (q *persistQueue) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package poll runs a function on a fixed interval until stopped.
package poll

import (
	"context"
	"sync"
	"time"
)

// Task is a running periodic loop. Each Task has its own cancellation,
// so independent loops never wait on one another.
type Task struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Start calls fn immediately and then every interval until ctx is done or
// Stop is called. fn receives a context that is cancelled on Stop. A
// non-positive interval calls fn once.
func Start(ctx context.Context, interval time.Duration, fn func(context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		if interval <= 0 {
			fn(ctx)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			fn(ctx)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return t
}

// Stop cancels the loop and waits for the current call to return.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	t.wg.Wait()
}

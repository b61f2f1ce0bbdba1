package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/autotrain/internal/adapters/mq/queue"
	worker "github.com/okian/autotrain/internal/adapters/mq/worker"
	model "github.com/okian/autotrain/internal/domain/model"
	logging "github.com/okian/autotrain/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	ch chan queue.Request
}

func newMockQueue() *mockQueue {
	return &mockQueue{ch: make(chan queue.Request, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Request { return mq.ch }

func (mq *mockQueue) Close() error {
	close(mq.ch)
	return nil
}

type mockRunner struct {
	mu      sync.Mutex
	done    []string
	errs    map[string]error
	delay   time.Duration
	started chan string
}

func newMockRunner() *mockRunner {
	return &mockRunner{errs: map[string]error{}, started: make(chan string, 10)}
}

func (m *mockRunner) Execute(ctx context.Context, r queue.Request) error {
	m.started <- r.ID
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			m.record(r.ID + ":" + ctx.Err().Error())
			return ctx.Err()
		}
	}
	m.record(r.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[r.ID]
}

func (m *mockRunner) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = append(m.done, s)
}

func (m *mockRunner) completed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.done...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		runner := newMockRunner()

		convey.Convey("When a request is queued", func() {
			w := worker.NewInMemoryWorker(q, runner, worker.WithName("test-worker"))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			q.ch <- model.RunRequest{ID: "run-1", Trigger: "manual", EnqueuedAt: time.Now()}

			convey.Convey("Then the runner executes it", func() {
				ok := waitFor(func() bool { return len(runner.completed()) == 1 })
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(runner.completed(), convey.ShouldResemble, []string{"run-1"})
			})
		})

		convey.Convey("When a run fails", func() {
			runner.errs["bad"] = errors.New("boom")
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			q.ch <- model.RunRequest{ID: "bad"}
			q.ch <- model.RunRequest{ID: "good"}

			convey.Convey("Then the worker keeps going", func() {
				ok := waitFor(func() bool { return len(runner.completed()) == 2 })
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(runner.completed(), convey.ShouldResemble, []string{"bad", "good"})
			})
		})

		convey.Convey("When a run exceeds the run timeout", func() {
			runner.delay = time.Second
			w := worker.NewInMemoryWorker(q, runner, worker.WithRunTimeout(20*time.Millisecond))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			q.ch <- model.RunRequest{ID: "slow"}

			convey.Convey("Then its context is cancelled", func() {
				ok := waitFor(func() bool { return len(runner.completed()) == 1 })
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(runner.completed()[0], convey.ShouldEqual, "slow:"+context.DeadlineExceeded.Error())
			})
		})

		convey.Convey("When the worker is shut down", func() {
			w := worker.NewInMemoryWorker(q, runner)
			go w.Run(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			convey.Convey("Then it stops without error and tolerates a second call", func() {
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of two workers", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		runner := newMockRunner()
		runner.delay = 50 * time.Millisecond
		pool := worker.NewPool(2, q, runner)
		convey.So(pool.Size(), convey.ShouldEqual, 2)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When two runs are queued", func() {
			q.ch <- model.RunRequest{ID: "a"}
			q.ch <- model.RunRequest{ID: "b"}

			convey.Convey("Then they execute concurrently", func() {
				<-runner.started
				<-runner.started
				convey.So(pool.Active(), convey.ShouldEqual, 2)

				ok := waitFor(func() bool { return len(runner.completed()) == 2 })
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(waitFor(func() bool { return pool.Active() == 0 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every worker stops", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

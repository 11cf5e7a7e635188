package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/Greggwolin/landscape-sub003/internal/adapters/mq/queue"
	worker "github.com/Greggwolin/landscape-sub003/internal/adapters/mq/worker"
	logging "github.com/Greggwolin/landscape-sub003/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type mockRunner struct {
	mu     sync.Mutex
	runs   map[string]int
	errors map[string]error
}

func newMockRunner() *mockRunner {
	return &mockRunner{runs: make(map[string]int), errors: make(map[string]error)}
}

func (r *mockRunner) Recompute(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.errors[projectID]; ok {
		return err
	}
	r.runs[projectID]++
	return nil
}

func (r *mockRunner) setError(projectID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[projectID] = err
}

func (r *mockRunner) count(projectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[projectID]
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		runner := newMockRunner()

		convey.Convey("When creating a worker with options", func() {
			w := worker.NewInMemoryWorker(q, runner, worker.WithName("test-worker"), worker.WithLogger(logging.Get()))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, runner)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			convey.Convey("And when a recompute job arrives", func() {
				q.jobs <- queue.Job{JobID: "j1", ProjectID: "p1", Reason: "config_saved"}

				convey.Convey("Then the project should be recomputed", func() {
					convey.So(waitFor(func() bool { return runner.count("p1") == 1 }), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when the recompute fails", func() {
				runner.setError("p2", errors.New("store down"))
				q.jobs <- queue.Job{JobID: "j2", ProjectID: "p2"}
				q.jobs <- queue.Job{JobID: "j3", ProjectID: "p3"}

				convey.Convey("Then the worker should keep going", func() {
					convey.So(waitFor(func() bool { return runner.count("p3") == 1 }), convey.ShouldBeTrue)
					convey.So(runner.count("p2"), convey.ShouldEqual, 0)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()
				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue closes", func() {
			w := worker.NewInMemoryWorker(q, runner)
			stopped := make(chan struct{})
			go func() { w.Run(context.Background()); close(stopped) }()
			_ = q.Close()

			convey.Convey("Then the worker should stop", func() {
				var ok bool
				select {
				case <-stopped:
					ok = true
				case <-time.After(time.Second):
				}
				convey.So(ok, convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a started worker pool", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		runner := newMockRunner()
		runner.setError("bad", errors.New("boom"))
		pool := worker.NewPool(3, q, runner)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When jobs are enqueued", func() {
			for _, id := range []string{"a", "b", "a", "bad"} {
				convey.So(q.Enqueue(ctx, queue.Job{ProjectID: id}), convey.ShouldBeNil)
			}

			convey.Convey("Then every job should be processed and counted", func() {
				convey.So(waitFor(func() bool {
					s := pool.Stats()
					return s.Processed == 3 && s.Failed == 1
				}), convey.ShouldBeTrue)
				convey.So(runner.count("a"), convey.ShouldEqual, 2)
				convey.So(pool.Stats().Workers, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When shutting down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then the queue should be closed and workers stopped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}

// blockingRunner waits for its context, so only a job timeout ends a run.
type blockingRunner struct{}

func (blockingRunner) Recompute(ctx context.Context, projectID string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestWorkerPool_JobTimeout(t *testing.T) {
	convey.Convey("Given a pool whose jobs never finish on their own", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		pool := worker.NewPool(1, q, blockingRunner{}, worker.WithJobTimeout(20*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When a job is enqueued", func() {
			convey.So(q.Enqueue(ctx, queue.Job{ProjectID: "slow"}), convey.ShouldBeNil)

			convey.Convey("Then the job should fail once its timeout passes", func() {
				convey.So(waitFor(func() bool {
					s := pool.Stats()
					return s.Failed == 1 && s.Busy == 0
				}), convey.ShouldBeTrue)
			})
		})
	})
}

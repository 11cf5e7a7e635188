package runcache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Greggwolin/landscape-sub003/internal/domain/model"
	runcache "github.com/Greggwolin/landscape-sub003/internal/domain/runcache"
)

func result(project, run string) *model.WaterfallResult {
	return &model.WaterfallResult{ProjectID: project, RunID: run}
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new cache", t, func() {
		c := runcache.New()

		Convey("When it is empty", func() {
			res, ok := c.Get(ctx, "missing")

			Convey("Then lookups miss", func() {
				So(ok, ShouldBeFalse)
				So(res, ShouldBeNil)
				So(c.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a result is stored", func() {
			c.Put(ctx, "fp-1", result("p1", "run-1"))
			res, ok := c.Get(ctx, "fp-1")

			Convey("Then it is returned as stored", func() {
				So(ok, ShouldBeTrue)
				So(res.RunID, ShouldEqual, "run-1")
				So(c.Size(), ShouldEqual, 1)
			})

			Convey("And the same key is stored again", func() {
				c.Put(ctx, "fp-1", result("p1", "run-2"))
				res, _ := c.Get(ctx, "fp-1")

				Convey("Then it is replaced without growing", func() {
					So(res.RunID, ShouldEqual, "run-2")
					So(c.Size(), ShouldEqual, 1)
				})
			})

			Convey("And it is invalidated", func() {
				c.Invalidate(ctx, "fp-1")
				_, ok := c.Get(ctx, "fp-1")

				Convey("Then it is gone", func() {
					So(ok, ShouldBeFalse)
					So(c.Size(), ShouldEqual, 0)
				})
			})
		})

		Convey("When nil is stored", func() {
			c.Put(ctx, "fp-nil", nil)

			Convey("Then nothing is kept", func() {
				So(c.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a project is invalidated", func() {
			c.Put(ctx, "a", result("p1", "1"))
			c.Put(ctx, "b", result("p2", "2"))
			c.Put(ctx, "c", result("p1", "3"))
			removed := c.InvalidateProject(ctx, "p1")

			Convey("Then only its entries are dropped", func() {
				So(removed, ShouldEqual, 2)
				So(c.Size(), ShouldEqual, 1)
				_, ok := c.Get(ctx, "b")
				So(ok, ShouldBeTrue)
			})
		})
	})

	Convey("Given a cache bounded to three entries", t, func() {
		c := runcache.New(runcache.WithMaxSize(3))
		for _, k := range []string{"k1", "k2", "k3"} {
			c.Put(ctx, k, result("p", k))
		}

		Convey("When the oldest is read and a fourth is added", func() {
			_, _ = c.Get(ctx, "k1")
			c.Put(ctx, "k4", result("p", "k4"))

			Convey("Then the least recently used entry is evicted", func() {
				So(c.Size(), ShouldEqual, 3)
				_, ok := c.Get(ctx, "k2")
				So(ok, ShouldBeFalse)
				_, ok = c.Get(ctx, "k1")
				So(ok, ShouldBeTrue)
				_, ok = c.Get(ctx, "k4")
				So(ok, ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded cache", t, func() {
		c := runcache.New(runcache.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			c.Put(ctx, fmt.Sprintf("k-%d", i), result("p", "r"))
		}

		Convey("Then nothing is evicted", func() {
			So(c.Size(), ShouldEqual, 1000)
		})
	})
}

func TestCacheConcurrency(t *testing.T) {
	Convey("Given a cache shared by goroutines", t, func() {
		ctx := context.Background()
		c := runcache.New(runcache.WithMaxSize(500))
		const workers = 10
		const perWorker = 100

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					key := fmt.Sprintf("%d-%d", w, i)
					c.Put(ctx, key, result("p", key))
					c.Get(ctx, key)
				}
			}(w)
		}
		wg.Wait()

		Convey("Then the bound holds", func() {
			So(c.Size(), ShouldEqual, 500)
		})
	})
}

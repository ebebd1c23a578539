package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/retention/internal/domain/job"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a memory store with one job", t, func() {
		s := NewMemoryStore()
		yes := true
		j := job.New("j1", job.Request{Mode: job.ModeFull, EmployeeIDs: []string{"e1"}, IncludeExplanations: &yes, IdempotencyKey: "k1"}, t0)
		So(s.Create(ctx, j), ShouldBeNil)

		Convey("Creating it again is rejected", func() {
			So(errors.Is(s.Create(ctx, j), ErrDuplicate), ShouldBeTrue)
			So(s.Create(ctx, nil), ShouldEqual, ErrNilJob)
		})

		Convey("Get returns an independent copy", func() {
			got, err := s.Get(ctx, "j1")
			So(err, ShouldBeNil)
			got.Request.EmployeeIDs[0] = "changed"
			*got.Request.IncludeExplanations = false
			So(got.Start(t0.Add(time.Minute)), ShouldBeNil)

			again, _ := s.Get(ctx, "j1")
			So(again.State, ShouldEqual, job.StateQueued)
			So(again.Request.EmployeeIDs[0], ShouldEqual, "e1")
			So(*again.Request.IncludeExplanations, ShouldBeTrue)
		})

		Convey("Update persists transitions", func() {
			got, _ := s.Get(ctx, "j1")
			So(got.Start(t0.Add(time.Minute)), ShouldBeNil)
			So(s.Update(ctx, got), ShouldBeNil)

			again, _ := s.Get(ctx, "j1")
			So(again.State, ShouldEqual, job.StateRunning)
			So(*again.StartedAt, ShouldEqual, t0.Add(time.Minute))
		})

		Convey("Unknown ids are reported", func() {
			_, err := s.Get(ctx, "nope")
			So(err, ShouldEqual, job.ErrNotFound)
			So(s.Update(ctx, job.New("nope", job.Request{}, t0)), ShouldEqual, job.ErrNotFound)
		})

		Convey("Idempotency keys find their job", func() {
			got, err := s.FindByIdempotencyKey(ctx, "k1")
			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, "j1")
			_, err = s.FindByIdempotencyKey(ctx, "k2")
			So(err, ShouldEqual, job.ErrNotFound)
		})

		Convey("List orders newest first and honours the limit", func() {
			So(s.Create(ctx, job.New("j2", job.Request{}, t0.Add(time.Hour))), ShouldBeNil)
			So(s.Create(ctx, job.New("j3", job.Request{}, t0.Add(2*time.Hour))), ShouldBeNil)

			all, err := s.List(ctx, 0)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 3)
			So(all[0].ID, ShouldEqual, "j3")
			So(all[2].ID, ShouldEqual, "j1")

			two, _ := s.List(ctx, 2)
			So(two, ShouldHaveLength, 2)
		})
	})
}

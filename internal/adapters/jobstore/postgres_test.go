package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/job"
	. "github.com/smartystreets/goconvey/convey"
)

func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("retention_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{"test": "retention-jobstore"}),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	return url
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	url := setupPostgres(t)
	ctx := context.Background()

	g, err := NewMigrator(url)
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	changed, err := g.Up()
	if err != nil || !changed {
		t.Fatalf("migrate up: changed=%v err=%v", changed, err)
	}
	version, dirty, ok, err := g.Version()
	if err != nil || !ok || dirty || version != 2 {
		t.Fatalf("unexpected version %d dirty=%v ok=%v err=%v", version, dirty, ok, err)
	}
	_ = g.Close()

	pool, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	s := NewPostgresStore(pool)
	defer s.Close()

	Convey("Given a postgres job store", t, func() {
		_, err := pool.Exec(ctx, "TRUNCATE jobs")
		So(err, ShouldBeNil)

		no := false
		j := job.New("j1", job.Request{Mode: job.ModePredict, AsOf: "2024-05-31", EmployeeIDs: []string{"e1", "e2"}, IncludeExplanations: &no, IdempotencyKey: "k1"}, t0)
		So(s.Create(ctx, j), ShouldBeNil)

		Convey("The request round-trips", func() {
			got, err := s.Get(ctx, "j1")
			So(err, ShouldBeNil)
			So(got.State, ShouldEqual, job.StateQueued)
			So(got.Request.Mode, ShouldEqual, job.ModePredict)
			So(got.Request.EmployeeIDs, ShouldResemble, []string{"e1", "e2"})
			So(got.Request.Explain(), ShouldBeFalse)
			So(got.CreatedAt.Equal(t0), ShouldBeTrue)
			So(got.StartedAt, ShouldBeNil)
		})

		Convey("Duplicates are rejected by id and by idempotency key", func() {
			So(errors.Is(s.Create(ctx, j), ErrDuplicate), ShouldBeTrue)
			other := job.New("j2", job.Request{IdempotencyKey: "k1"}, t0)
			So(errors.Is(s.Create(ctx, other), ErrDuplicate), ShouldBeTrue)

			found, err := s.FindByIdempotencyKey(ctx, "k1")
			So(err, ShouldBeNil)
			So(found.ID, ShouldEqual, "j1")
		})

		Convey("A failed run is persisted with its stage and kind", func() {
			got, _ := s.Get(ctx, "j1")
			So(got.Start(t0.Add(time.Minute)), ShouldBeNil)
			So(s.Update(ctx, got), ShouldBeNil)
			runErr := failure.InStage("predict", failure.New("predict", failure.ErrInferenceSchemaMismatch))
			So(got.Fail(runErr, t0.Add(2*time.Minute)), ShouldBeNil)
			So(s.Update(ctx, got), ShouldBeNil)

			again, err := s.Get(ctx, "j1")
			So(err, ShouldBeNil)
			So(again.State, ShouldEqual, job.StateFailed)
			So(again.Stage, ShouldEqual, "predict")
			So(again.ErrorKind, ShouldEqual, failure.ErrInferenceSchemaMismatch.Error())
			So(again.FinishedAt, ShouldNotBeNil)
		})

		Convey("Unknown jobs are not found", func() {
			_, err := s.Get(ctx, "nope")
			So(err, ShouldEqual, job.ErrNotFound)
			So(s.Update(ctx, job.New("nope", job.Request{}, t0)), ShouldEqual, job.ErrNotFound)
		})

		Convey("List returns newest first", func() {
			So(s.Create(ctx, job.New("j2", job.Request{}, t0.Add(time.Hour))), ShouldBeNil)
			list, err := s.List(ctx, 1)
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 1)
			So(list[0].ID, ShouldEqual, "j2")
		})
	})
}

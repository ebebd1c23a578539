package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/okian/retention/internal/adapters/http/api"
	"github.com/okian/retention/internal/adapters/tabular"
	service "github.com/okian/retention/internal/app"
	"github.com/okian/retention/internal/config"
	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/gbm"
	"github.com/okian/retention/internal/domain/hr"
	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/internal/domain/pipeline"
	"github.com/okian/retention/internal/domain/training"
	"github.com/okian/retention/internal/synthdata"
	"github.com/okian/retention/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const asOf = "2023-06-30"

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func smallTrainer() *training.Trainer {
	base := gbm.DefaultParams()
	base.Iterations = 30
	return training.NewTrainer(
		training.WithHoldout(4, 4),
		training.WithTrials(2, 2),
		training.WithBaseline(base),
		training.WithSearchSpace(training.SearchSpace{
			MinIterations:   10,
			MaxIterations:   30,
			MinLearningRate: 0.1,
			MaxLearningRate: 0.3,
			MinDepth:        2,
			MaxDepth:        3,
			MinL2:           1e-3,
			MaxL2:           1,
			MinSubsample:    1,
			MinLeafSize:     5,
			MaxLeafSize:     10,
		}),
	)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New(context.Background())
	cfg.DataDir = t.TempDir()
	cfg.OutputDir = t.TempDir()
	cfg.WorkerCount = 2
	cfg.QueueSize = 8

	opts := synthdata.DefaultOptions()
	opts.Employees = 120
	opts.Months = 18
	if err := tabular.Write(context.Background(), tabular.Dir(cfg.DataDir), synthdata.Generate(opts)); err != nil {
		t.Fatalf("write tables: %v", err)
	}
	return cfg
}

func waitTerminal(ctx context.Context, svc *service.Service, id string) *job.Job {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		j, err := svc.Job(ctx, id)
		if err == nil && j.State.Terminal() {
			return j
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

func TestService(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	Convey("Given a started service over a synthetic company", t, func() {
		svc, err := service.New(ctx, cfg, service.WithPipelineOptions(pipeline.WithTrainer(smallTrainer())))
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("Invalid requests are rejected before anything is queued", func() {
			_, _, err := svc.Submit(ctx, job.Request{Mode: "everything"})
			So(errors.Is(err, job.ErrInvalidRequest), ShouldBeTrue)

			jobs, err := svc.Jobs(ctx, 10)
			So(err, ShouldBeNil)
			So(jobs, ShouldBeEmpty)
		})

		Convey("A full job completes and publishes its report", func() {
			j, dup, err := svc.Submit(ctx, job.Request{AsOf: asOf})
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)
			So(j.State, ShouldEqual, job.StateQueued)

			done := waitTerminal(ctx, svc, j.ID)
			So(done, ShouldNotBeNil)
			So(done.Error, ShouldBeEmpty)
			So(done.State, ShouldEqual, job.StateCompleted)
			So(done.Progress, ShouldEqual, job.ProgressDone)
			So(done.ModelVersion, ShouldNotBeEmpty)
			So(done.ReportKey, ShouldEqual, "reports/"+j.ID+".json")

			raw, err := svc.Report(ctx, j.ID)
			So(err, ShouldBeNil)
			var rep struct {
				Summary struct {
					TotalEmployees       int     `json:"total_employees"`
					TerminationThreshold float64 `json:"termination_threshold"`
				} `json:"overall_summary"`
				Predictions []json.RawMessage `json:"predictions"`
			}
			So(json.Unmarshal(raw, &rep), ShouldBeNil)
			So(rep.Summary.TotalEmployees, ShouldBeGreaterThan, 0)
			So(rep.Predictions, ShouldHaveLength, rep.Summary.TotalEmployees)

			Convey("and a later predict job reuses the published model", func() {
				p, _, err := svc.Submit(ctx, job.Request{Mode: job.ModePredict, AsOf: asOf})
				So(err, ShouldBeNil)
				pd := waitTerminal(ctx, svc, p.ID)
				So(pd, ShouldNotBeNil)
				So(pd.State, ShouldEqual, job.StateCompleted)
				So(pd.ModelVersion, ShouldEqual, done.ModelVersion)
			})
		})

		Convey("Idempotency keys return the first job", func() {
			req := job.Request{Mode: job.ModeTrain, AsOf: asOf, IdempotencyKey: "nightly-2023-06"}
			first, dup, err := svc.Submit(ctx, req)
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			second, dup, err := svc.Submit(ctx, req)
			So(err, ShouldBeNil)
			So(dup, ShouldBeTrue)
			So(second.ID, ShouldEqual, first.ID)

			So(waitTerminal(ctx, svc, first.ID), ShouldNotBeNil)
			third, dup, err := svc.Submit(ctx, req)
			So(err, ShouldBeNil)
			So(dup, ShouldBeTrue)
			So(third.ID, ShouldEqual, first.ID)
		})

		Convey("Reports of unfinished or train-only jobs are not served", func() {
			_, err := svc.Report(ctx, "missing")
			So(errors.Is(err, job.ErrNotFound), ShouldBeTrue)

			j, _, err := svc.Submit(ctx, job.Request{Mode: job.ModeTrain, AsOf: asOf})
			So(err, ShouldBeNil)
			if cur, _ := svc.Job(ctx, j.ID); !cur.State.Terminal() {
				_, err = svc.Report(ctx, j.ID)
				So(errors.Is(err, api.ErrNotReady), ShouldBeTrue)
			}
			So(waitTerminal(ctx, svc, j.ID).State, ShouldEqual, job.StateCompleted)
			_, err = svc.Report(ctx, j.ID)
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
		})

		Convey("Stats describe the pool, the queue and jobs by state", func() {
			j, _, err := svc.Submit(ctx, job.Request{Mode: job.ModeTrain, AsOf: asOf})
			So(err, ShouldBeNil)
			So(waitTerminal(ctx, svc, j.ID), ShouldNotBeNil)

			stats, err := svc.Stats(ctx)
			So(err, ShouldBeNil)
			So(stats.Started, ShouldBeTrue)
			So(stats.Workers, ShouldEqual, cfg.WorkerCount)
			So(stats.QueueCapacity, ShouldEqual, cfg.QueueSize)
			So(stats.RecentJobs, ShouldEqual, 1)
			So(stats.Jobs[job.StateCompleted], ShouldEqual, 1)
			So(stats.Jobs, ShouldContainKey, job.StateQueued)
		})
	})
}

func TestServiceFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with no published model", t, func() {
		cfg := testConfig(t)
		svc, err := service.New(ctx, cfg)
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("A predict job fails in the predict stage", func() {
			j, _, err := svc.Submit(ctx, job.Request{Mode: job.ModePredict, AsOf: asOf})
			So(err, ShouldBeNil)

			done := waitTerminal(ctx, svc, j.ID)
			So(done, ShouldNotBeNil)
			So(done.State, ShouldEqual, job.StateFailed)
			So(done.Stage, ShouldEqual, pipeline.StagePredict)
			So(done.Error, ShouldContainSubstring, "no model")

			_, err = svc.Report(ctx, j.ID)
			So(errors.Is(err, api.ErrNotReady), ShouldBeTrue)
		})
	})

	Convey("Given a service whose source is missing", t, func() {
		cfg := config.New(ctx)
		cfg.DataDir = t.TempDir()
		cfg.OutputDir = t.TempDir()
		svc, err := service.New(ctx, cfg)
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("The job fails in the load stage as a data integrity error", func() {
			j, _, err := svc.Submit(ctx, job.Request{AsOf: asOf})
			So(err, ShouldBeNil)
			done := waitTerminal(ctx, svc, j.ID)
			So(done, ShouldNotBeNil)
			So(done.State, ShouldEqual, job.StateFailed)
			So(done.Stage, ShouldEqual, pipeline.StageLoad)
			So(done.ErrorKind, ShouldEqual, failure.ErrDataIntegrity.Error())
		})
	})

	Convey("Given a service that was never started", t, func() {
		cfg := config.New(ctx)
		cfg.DataDir = t.TempDir()
		cfg.OutputDir = t.TempDir()
		cfg.QueueSize = 1
		svc, err := service.New(ctx, cfg)
		So(err, ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("A full queue pushes back and releases the idempotency key", func() {
			_, _, err := svc.Submit(ctx, job.Request{AsOf: asOf})
			So(err, ShouldBeNil)

			_, _, err = svc.Submit(ctx, job.Request{AsOf: asOf, IdempotencyKey: "k"})
			So(errors.Is(err, api.ErrBackpressure), ShouldBeTrue)

			jobs, err := svc.Jobs(ctx, 10)
			So(err, ShouldBeNil)
			So(jobs, ShouldHaveLength, 2)
			failed := 0
			for _, j := range jobs {
				if j.State == job.StateFailed {
					failed++
				}
			}
			So(failed, ShouldEqual, 1)

			_, _, err = svc.Submit(ctx, job.Request{AsOf: asOf, IdempotencyKey: "k"})
			So(errors.Is(err, api.ErrBackpressure), ShouldBeTrue)
		})
	})
}

// slowSource fails every load after a delay.
type slowSource struct{ delay time.Duration }

func (s slowSource) Load(ctx context.Context) (*hr.Dataset, error) {
	select {
	case <-time.After(s.delay):
		return nil, failure.ErrDataIntegrity
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestShutdownFailsQueuedJobs(t *testing.T) {
	ctx := context.Background()

	Convey("Given a single worker busy with a slow load", t, func() {
		cfg := config.New(ctx)
		cfg.DataDir = t.TempDir()
		cfg.OutputDir = t.TempDir()
		cfg.WorkerCount = 1
		svc, err := service.New(ctx, cfg, service.WithSource(slowSource{delay: 300 * time.Millisecond}))
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		var ids []string
		for i := 0; i < 3; i++ {
			j, _, err := svc.Submit(ctx, job.Request{AsOf: asOf})
			So(err, ShouldBeNil)
			ids = append(ids, j.ID)
		}

		Convey("Stop leaves no job queued or running", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			for _, id := range ids {
				j, err := svc.Job(ctx, id)
				So(err, ShouldBeNil)
				So(j.State, ShouldEqual, job.StateFailed)
				So(j.FinishedAt, ShouldNotBeNil)
				if j.Stage == service.StageQueue {
					So(j.Error, ShouldContainSubstring, service.ErrShutdown.Error())
				} else {
					So(j.Stage, ShouldEqual, pipeline.StageLoad)
				}
			}
		})
	})

	Convey("Given a service whose workers exited before anything was queued", t, func() {
		cfg := config.New(ctx)
		cfg.DataDir = t.TempDir()
		cfg.OutputDir = t.TempDir()
		svc, err := service.New(ctx, cfg, service.WithSource(slowSource{delay: time.Millisecond}))
		So(err, ShouldBeNil)

		gone, cancel := context.WithCancel(ctx)
		cancel()
		So(svc.Start(gone), ShouldBeNil)
		time.Sleep(50 * time.Millisecond)

		a, _, err := svc.Submit(ctx, job.Request{AsOf: asOf})
		So(err, ShouldBeNil)
		b, _, err := svc.Submit(ctx, job.Request{AsOf: asOf, IdempotencyKey: "k"})
		So(err, ShouldBeNil)

		Convey("Stop fails both jobs in the queue stage", func() {
			So(svc.Stop(ctx), ShouldBeNil)
			for _, id := range []string{a.ID, b.ID} {
				j, err := svc.Job(ctx, id)
				So(err, ShouldBeNil)
				So(j.State, ShouldEqual, job.StateFailed)
				So(j.Stage, ShouldEqual, service.StageQueue)
				So(j.Error, ShouldContainSubstring, service.ErrShutdown.Error())
			}
		})
	})
}

func TestCallback(t *testing.T) {
	ctx := context.Background()

	Convey("Given a job with a callback URL", t, func() {
		got := make(chan service.CallbackPayload, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p service.CallbackPayload
			if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
				select {
				case got <- p:
				default:
				}
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		Reset(srv.Close)

		cfg := testConfig(t)
		svc, err := service.New(ctx, cfg, service.WithPipelineOptions(pipeline.WithTrainer(smallTrainer())))
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		j, _, err := svc.Submit(ctx, job.Request{AsOf: asOf, CallbackURL: srv.URL})
		So(err, ShouldBeNil)

		Convey("The completed job and its report are posted", func() {
			select {
			case p := <-got:
				So(p.JobID, ShouldEqual, j.ID)
				So(p.Status, ShouldEqual, job.StateCompleted)
				So(p.ModelVersion, ShouldNotBeEmpty)
				So(string(p.Result), ShouldContainSubstring, "overall_summary")
			case <-time.After(2 * time.Minute):
				So("callback", ShouldBeEmpty)
			}
		})
	})
}

func TestNotifier(t *testing.T) {
	Convey("Given a callback endpoint that rejects posts", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		Reset(srv.Close)

		n := service.NewNotifierWithClient(srv.Client(), logger.Nop())
		j := job.New("j1", job.Request{CallbackURL: srv.URL}, time.Now())
		So(j.Fail(failure.InStage("load", failure.ErrDataIntegrity), time.Now()), ShouldBeNil)

		err := n.Notify(context.Background(), j, nil)
		So(errors.Is(err, service.ErrCallbackStatus), ShouldBeTrue)
	})
}

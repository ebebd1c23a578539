package smoke_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/okian/retention/internal/adapters/http/api"
	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/internal/smoke"
	"github.com/okian/retention/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const goodReport = `{"overall_summary":{"total_employees":2,"employees_predicted_to_leave":1,"termination_threshold":0.5},
"predictions":[{"employee_id":"e1","termination_probability":0.7,"predicted_termination":true},
{"employee_id":"e2","termination_probability":0.2,"predicted_termination":false}]}`

// fakeService completes a job the second time it is looked up.
type fakeService struct {
	mu     sync.Mutex
	jobs   map[string]*job.Job
	keys   map[string]string
	polls  map[string]int
	report string
	fail   bool
	dupes  bool
}

func newFakeService() *fakeService {
	return &fakeService{
		jobs:   map[string]*job.Job{},
		keys:   map[string]string{},
		polls:  map[string]int{},
		report: goodReport,
		dupes:  true,
	}
}

func (f *fakeService) Submit(_ context.Context, req job.Request) (*job.Job, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.keys[req.IdempotencyKey]; ok && f.dupes {
		cp := *f.jobs[id]
		return &cp, true, nil
	}
	j := job.New("job-"+strconv.Itoa(len(f.jobs)), req, time.Now())
	f.jobs[j.ID] = j
	f.keys[req.IdempotencyKey] = j.ID
	cp := *j
	return &cp, false, nil
}

func (f *fakeService) Job(_ context.Context, id string) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	f.polls[id]++
	if f.polls[id] == 2 {
		now := time.Now()
		_ = j.Start(now)
		if f.fail {
			_ = j.Fail(errors.New("boom"), now)
		} else {
			_ = j.Complete("v1", "reports/"+id+".json", now)
		}
	}
	cp := *j
	return &cp, nil
}

func (f *fakeService) Jobs(context.Context, int) ([]*job.Job, error) { return nil, nil }

func (f *fakeService) Report(_ context.Context, id string) ([]byte, error) {
	return []byte(f.report), nil
}

func (f *fakeService) Stats(context.Context) (*api.Stats, error) { return &api.Stats{}, nil }

func serve(svc *fakeService) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func config(url string) *smoke.Config {
	return &smoke.Config{
		BaseURL:      url,
		Jobs:         3,
		Workers:      2,
		Timeout:      5 * time.Second,
		PollInterval: 5 * time.Millisecond,
		Wait:         5 * time.Second,
		AsOf:         "2023-06-30",
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()

	Convey("Given a well-behaved service", t, func() {
		svc := newFakeService()
		srv := serve(svc)
		Reset(srv.Close)

		Convey("Every job is deduplicated, completed and verified", func() {
			stats, err := smoke.Run(ctx, config(srv.URL), log)
			So(err, ShouldBeNil)
			So(stats.Submitted, ShouldEqual, 6)
			So(stats.Accepted, ShouldEqual, 3)
			So(stats.Duplicates, ShouldEqual, 3)
			So(stats.Completed, ShouldEqual, 3)
			So(stats.Reports, ShouldEqual, 3)
		})
	})

	Convey("Given a service that ignores idempotency keys", t, func() {
		svc := newFakeService()
		svc.dupes = false
		srv := serve(svc)
		Reset(srv.Close)

		_, err := smoke.Run(ctx, config(srv.URL), log)
		So(errors.Is(err, smoke.ErrVerification), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "resubmission created job")
	})

	Convey("Given a service whose jobs fail", t, func() {
		svc := newFakeService()
		svc.fail = true
		srv := serve(svc)
		Reset(srv.Close)

		stats, err := smoke.Run(ctx, config(srv.URL), log)
		So(errors.Is(err, smoke.ErrVerification), ShouldBeTrue)
		So(stats.Failed, ShouldEqual, 3)
	})

	Convey("Given a report whose flags disagree with its threshold", t, func() {
		svc := newFakeService()
		svc.report = `{"overall_summary":{"total_employees":1,"employees_predicted_to_leave":0,"termination_threshold":0.5},
"predictions":[{"employee_id":"e1","termination_probability":0.9,"predicted_termination":false}]}`
		srv := serve(svc)
		Reset(srv.Close)

		_, err := smoke.Run(ctx, config(srv.URL), log)
		So(errors.Is(err, smoke.ErrVerification), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "disagrees with threshold")
	})

	Convey("Given no service", t, func() {
		cfg := config("http://127.0.0.1:1")
		cfg.Timeout = time.Second
		_, err := smoke.Run(ctx, cfg, log)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "health check")
	})
}

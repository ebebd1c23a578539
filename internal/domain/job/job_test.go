package job

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/retention/internal/domain/failure"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestLifecycle(t *testing.T) {
	Convey("Given a queued job", t, func() {
		j := New("j1", Request{Mode: ModeFull}, t0)
		So(j.State, ShouldEqual, StateQueued)

		Convey("It runs and completes", func() {
			So(j.Start(t0.Add(time.Second)), ShouldBeNil)
			So(j.State, ShouldEqual, StateRunning)
			So(*j.StartedAt, ShouldEqual, t0.Add(time.Second))

			j.Advance("panel", ProgressPanel, t0.Add(2*time.Second))
			j.Advance("load", ProgressLoaded, t0.Add(3*time.Second))
			So(j.Progress, ShouldEqual, ProgressPanel)

			So(j.Complete("v1", "reports/j1.json", t0.Add(4*time.Second)), ShouldBeNil)
			So(j.State, ShouldEqual, StateCompleted)
			So(j.Progress, ShouldEqual, ProgressDone)
			So(j.ReportKey, ShouldEqual, "reports/j1.json")

			Convey("A terminal job cannot move again", func() {
				err := j.Fail(errors.New("late"), t0)
				So(errors.Is(err, ErrInvalidTransition), ShouldBeTrue)
				So(j.State, ShouldEqual, StateCompleted)
			})
		})

		Convey("A failure records the stage and kind", func() {
			So(j.Start(t0), ShouldBeNil)
			cause := failure.InStage("train", failure.New("train model", failure.ErrTrainingFailure))
			So(j.Fail(cause, t0), ShouldBeNil)
			So(j.State, ShouldEqual, StateFailed)
			So(j.Stage, ShouldEqual, "train")
			So(j.ErrorKind, ShouldEqual, failure.ErrTrainingFailure.Error())
			So(j.FinishedAt, ShouldNotBeNil)
		})

		Convey("A queued job cannot complete directly", func() {
			So(errors.Is(j.Complete("", "", t0), ErrInvalidTransition), ShouldBeTrue)
		})
	})
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateQueued, StateRunning, true},
		{StateQueued, StateFailed, true},
		{StateQueued, StateCompleted, false},
		{StateRunning, StateCompleted, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateQueued, false},
		{StateCompleted, StateRunning, false},
		{StateFailed, StateRunning, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestRequest(t *testing.T) {
	Convey("Given job requests", t, func() {
		Convey("Defaults fill the mode and explanations", func() {
			r := Request{}
			r.Normalize()
			So(r.Mode, ShouldEqual, ModeFull)
			So(r.Explain(), ShouldBeTrue)
			So(r.Validate(), ShouldBeNil)
		})

		Convey("Explanations can be disabled", func() {
			off := false
			So(Request{IncludeExplanations: &off}.Explain(), ShouldBeFalse)
		})

		Convey("Invalid requests are rejected", func() {
			bad := []Request{
				{Mode: "replay"},
				{Mode: ModePredict, AsOf: "06/01/2024"},
				{Mode: ModeFull, EmployeeIDs: []string{"e1", " "}},
				{Mode: ModeTrain, CallbackURL: "ftp://example.com"},
			}
			for _, r := range bad {
				So(errors.Is(r.Validate(), ErrInvalidRequest), ShouldBeTrue)
			}
		})

		Convey("AsOf falls back to now", func() {
			at, err := Request{}.AsOfTime(t0)
			So(err, ShouldBeNil)
			So(at, ShouldEqual, t0)
			at, err = Request{AsOf: "2024-03-31"}.AsOfTime(t0)
			So(err, ShouldBeNil)
			So(at, ShouldEqual, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
		})

		Convey("Modes know their stages", func() {
			So(ModeFull.Trains() && ModeFull.Predicts(), ShouldBeTrue)
			So(ModeTrain.Predicts(), ShouldBeFalse)
			So(ModePredict.Trains(), ShouldBeFalse)
		})
	})
}

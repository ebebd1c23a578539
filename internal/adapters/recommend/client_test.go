package recommend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/retention/internal/adapters/recommend"
	"github.com/okian/retention/internal/domain/attribution"
	. "github.com/smartystreets/goconvey/convey"
)

var drivers = []attribution.Driver{
	{Feature: "overtime_hours", ImpactValue: 0.12, ImpactPercentage: 40},
	{Feature: "salary_ratio", ImpactValue: 0.09, ImpactPercentage: 30},
	{Feature: "age", ImpactValue: 0.09, ImpactPercentage: 30},
}

func TestClient(t *testing.T) {
	Convey("Given a recommender endpoint", t, func() {
		var gotAuth string
		var gotBody map[string]any
		reply := `{"recommendation":[
			{"feature":["overtime_hours, salary_ratio"],"recommendation_action":"Review workload and pay bands."},
			{"feature":["unknown_feature"],"recommendation_action":"Ignored."}]}`
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(reply))
		}))
		defer srv.Close()

		c := recommend.NewClient(srv.URL, time.Second, recommend.WithModel("m-1"), recommend.WithAPIKey("secret"))

		Convey("When it answers with grouped features", func() {
			actions, err := c.Recommend(context.Background(), drivers)

			Convey("Then every known feature of a group gets the action", func() {
				So(err, ShouldBeNil)
				So(actions, ShouldResemble, map[string]string{
					"overtime_hours": "Review workload and pay bands.",
					"salary_ratio":   "Review workload and pay bands.",
				})
				So(gotAuth, ShouldEqual, "Bearer secret")
				So(gotBody["model"], ShouldEqual, "m-1")
				So(gotBody["prompt"], ShouldContainSubstring, "Top 3 features")
			})
		})

		Convey("When it fails", func() {
			status = http.StatusBadGateway
			_, err := c.Recommend(context.Background(), drivers)
			So(errors.Is(err, recommend.ErrStatus), ShouldBeTrue)
		})

		Convey("When it answers garbage", func() {
			reply = `not json`
			_, err := c.Recommend(context.Background(), drivers)
			So(errors.Is(err, recommend.ErrMalformed), ShouldBeTrue)
		})

		Convey("When it answers an empty list", func() {
			reply = `{"recommendation":[]}`
			_, err := c.Recommend(context.Background(), drivers)
			So(errors.Is(err, recommend.ErrMalformed), ShouldBeTrue)
		})

		Convey("No drivers means no call", func() {
			gotAuth = ""
			actions, err := c.Recommend(context.Background(), nil)
			So(err, ShouldBeNil)
			So(actions, ShouldBeNil)
			So(gotAuth, ShouldBeEmpty)
		})
	})

	Convey("Given a slow endpoint", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()

		c := recommend.NewClient(srv.URL, 50*time.Millisecond)
		_, err := c.Recommend(context.Background(), drivers)
		So(err, ShouldNotBeNil)
	})

	Convey("The prompt lists every driver", t, func() {
		p := recommend.Prompt(drivers)
		for _, d := range drivers {
			So(strings.Contains(p, d.Feature), ShouldBeTrue)
		}
	})
}

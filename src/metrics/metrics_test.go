package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		Convey("When created with a custom registry and labels", func() {
			registry := prometheus.NewRegistry()
			m := NewManager(
				WithRegistry(registry),
				WithNamespace("test"),
				WithSubsystem("roster"),
				WithHistogramBuckets([]float64{0.01, 0.1, 1}),
				WithConstLabels(map[string]string{"group": "051"}),
			)

			Convey("Then it uses that registry", func() {
				So(m, ShouldNotBeNil)
				So(m.Registry(), ShouldEqual, registry)
			})

			Convey("Then metric names carry the namespace", func() {
				m.RecordLoad("ok", 20*time.Millisecond)
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_roster_loads_total")
				So(names, ShouldContain, "test_roster_load_duration_seconds")
			})
		})
	})
}

func TestManagerRecording(t *testing.T) {
	Convey("Given a manager with a private registry", t, func() {
		m := NewManager()

		Convey("When recording pipeline activity", func() {
			m.RecordLoad("ok", time.Millisecond)
			m.RecordLoad("schema_error", time.Millisecond)
			m.RecordLoad("ok", time.Millisecond)
			m.RecordCache(true)
			m.RecordCache(false)
			m.RecordCache(true)
			m.SetRows(30, 2)

			Convey("Then counters and gauges reflect it", func() {
				body := scrape(m)
				So(body, ShouldContainSubstring, `roster_dashboard_loads_total{result="ok"} 2`)
				So(body, ShouldContainSubstring, `roster_dashboard_loads_total{result="schema_error"} 1`)
				So(body, ShouldContainSubstring, `roster_dashboard_cache_lookups_total{outcome="hit"} 2`)
				So(body, ShouldContainSubstring, "roster_dashboard_rows 30")
				So(body, ShouldContainSubstring, "roster_dashboard_dropped_rows 2")
			})
		})

		Convey("When recording HTTP, publish and push activity", func() {
			m.RecordHTTPRequest("/api/summary", 200, 5*time.Millisecond)
			m.RecordPublish("ok")
			m.RecordPush(false)

			Convey("Then the handler exposes them", func() {
				body := scrape(m)
				So(body, ShouldContainSubstring, `roster_dashboard_http_requests_total{code="200",route="/api/summary"} 1`)
				So(body, ShouldContainSubstring, `roster_dashboard_push_attempts_total{result="error"} 1`)
			})
		})
	})
}

func TestNilManager(t *testing.T) {
	Convey("Given a nil manager", t, func() {
		var m *Manager

		Convey("Then every method is a no-op", func() {
			So(func() {
				m.RecordLoad("ok", time.Second)
				m.RecordCache(true)
				m.SetRows(1, 0)
				m.RecordHTTPRequest("/", 200, time.Second)
				m.RecordPublish("ok")
				m.RecordPush(true)
			}, ShouldNotPanic)
			So(m.Registry(), ShouldBeNil)
			So(m.Handler(), ShouldNotBeNil)
		})
	})
}

func scrape(m *Manager) string {
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	So(rec.Code, ShouldEqual, 200)
	return rec.Body.String()
}

// Package metrics exposes Prometheus metrics for progression events,
// coach calls and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
)

const namespace = "selfdev"

// Metrics holds all collectors. Each instance owns its registry so tests
// do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Progression ────────────────────────────────────────────────────────
	PointsAwarded        *prometheus.CounterVec
	LevelUps             *prometheus.CounterVec
	AchievementsUnlocked *prometheus.CounterVec
	SaveFailures         *prometheus.CounterVec

	// ─── Collections ────────────────────────────────────────────────────────
	HabitToggles   *prometheus.CounterVec
	GoalsCompleted prometheus.Counter
	PlansCompleted prometheus.Counter

	// ─── Coach ──────────────────────────────────────────────────────────────
	CoachLatency *prometheus.HistogramVec

	// ─── HTTP ───────────────────────────────────────────────────────────────
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all collectors plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PointsAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Sum of point deltas applied, split by sign.",
		}, []string{"direction"}),
		LevelUps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Level-up notifications by new level.",
		}, []string{"level"}),
		AchievementsUnlocked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Achievements unlocked by id.",
		}, []string{"achievement"}),
		SaveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_save_failures_total",
			Help:      "Progress commits that were rolled back.",
		}, []string{"operation"}),

		HabitToggles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "habit_toggles_total",
			Help:      "Habit completion toggles.",
		}, []string{"completed"}),
		GoalsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_completed_total",
			Help:      "Goals that reached 100%.",
		}),
		PlansCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_completed_total",
			Help:      "Finished training sessions.",
		}),

		CoachLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "coach_latency_seconds",
			Help:      "Coach round-trip duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HandleEvent is an event bus handler updating the progression counters.
func (m *Metrics) HandleEvent(event shared.Event) error {
	p := event.Payload()
	switch event.EventType() {
	case shared.EventPointsAwarded:
		delta := toFloat(p["delta"])
		if delta >= 0 {
			m.PointsAwarded.WithLabelValues("gain").Add(delta)
		} else {
			m.PointsAwarded.WithLabelValues("loss").Add(-delta)
		}
	case shared.EventLevelUp:
		m.LevelUps.WithLabelValues(strconv.Itoa(int(toFloat(p["new_level"])))).Inc()
	case shared.EventAchievementUnlocked:
		id, _ := p["achievement_id"].(string)
		m.AchievementsUnlocked.WithLabelValues(id).Inc()
	case shared.EventSaveFailed:
		op, _ := p["operation"].(string)
		m.SaveFailures.WithLabelValues(op).Inc()
	case shared.EventHabitToggled:
		done, _ := p["completed"].(bool)
		m.HabitToggles.WithLabelValues(strconv.FormatBool(done)).Inc()
	case shared.EventGoalCompleted:
		m.GoalsCompleted.Inc()
	case shared.EventPlanCompleted:
		m.PlansCompleted.Inc()
	case shared.EventCoachReplied:
		provider, _ := p["provider"].(string)
		m.CoachLatency.WithLabelValues(provider).Observe(toFloat(p["latency_ms"]) / 1000)
	}
	return nil
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// toFloat accepts both local payloads and ones decoded from JSON.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

package scraper

import (
	"sync"

	"github.com/filmlens/scraper-cli/internal/model"
)

// recentErrorsCap bounds the error tail kept for the summary.
const recentErrorsCap = 10

// Metrics collects run counters as an Observer. Guarded because the status
// server may read a summary while a run is in progress.
type Metrics struct {
	mu           sync.Mutex
	scraped      int
	rejected     int
	errors       int
	qualitySum   float64
	recentErrors []string
}

// Summary is a point-in-time view of run progress.
type Summary struct {
	MoviesScraped  int      `json:"movies_scraped"`
	MoviesRejected int      `json:"movies_rejected"`
	ErrorsCount    int      `json:"errors_count"`
	SuccessRate    float64  `json:"success_rate"`
	AvgQuality     float64  `json:"avg_quality"`
	RecentErrors   []string `json:"recent_errors,omitempty"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) OnMovieScraped(rec model.MovieRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scraped++
	m.qualitySum += rec.QualityScore
}

// OnMovieRejected counts an entry discarded at the admissibility gate.
// Rejections are not errors; they only show up in the counters.
func (m *Metrics) OnMovieRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *Metrics) OnError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
	m.recentErrors = append(m.recentErrors, err.Error())
	if len(m.recentErrors) > recentErrorsCap {
		m.recentErrors = m.recentErrors[len(m.recentErrors)-recentErrorsCap:]
	}
}

// Summary returns current counters. Success rate is scraped over attempts
// (scraped plus errors), 0 when nothing was attempted.
func (m *Metrics) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		MoviesScraped:  m.scraped,
		MoviesRejected: m.rejected,
		ErrorsCount:    m.errors,
		RecentErrors:   append([]string(nil), m.recentErrors...),
	}
	if attempts := m.scraped + m.errors; attempts > 0 {
		s.SuccessRate = float64(m.scraped) / float64(attempts)
	}
	if m.scraped > 0 {
		s.AvgQuality = m.qualitySum / float64(m.scraped)
	}
	return s
}

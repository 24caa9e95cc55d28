package tui

import "time"

type Option func(*Model)

// WithUrgentAfterDays sets the days-in-stage threshold that marks a
// contact as stalled on the board.
func WithUrgentAfterDays(days int) Option {
	return func(m *Model) {
		if days > 0 {
			m.urgentAfterDays = days
		}
	}
}

// WithShowStats sets the initial visibility of the stats footer.
func WithShowStats(show bool) Option {
	return func(m *Model) {
		m.showStats = show
	}
}

// WithClock overrides the wall clock used for days-in-stage rendering.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

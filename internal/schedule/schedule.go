// Package schedule decides when outgoing email may leave. Sends outside
// the business window are deferred, never dropped: the caller schedules
// the draft for the next business time instead.
package schedule

import (
	"time"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

const (
	businessStartHour = 9
	businessEndHour   = 17
)

// IsBusinessHours reports whether t falls inside the send window:
// weekdays 09:00-16:59 in t's location.
func IsBusinessHours(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= businessStartHour && t.Hour() < businessEndHour
}

// NextBusinessTime returns the next send slot after t: the following day at
// 09:00, advanced past any weekend. The result keeps t's location.
func NextBusinessTime(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	next = time.Date(next.Year(), next.Month(), next.Day(), businessStartHour, 0, 0, 0, t.Location())
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Policy applies the configured scheduling rules, optionally in the
// recipient's timezone.
type Policy struct {
	skipWeekends  bool
	businessHours bool
	now           func() time.Time
}

// NewPolicy creates a scheduling policy. skipWeekends and businessHours
// come from the workflow config; both default to enabled.
func NewPolicy(skipWeekends, businessHours bool) *Policy {
	return &Policy{
		skipWeekends:  skipWeekends,
		businessHours: businessHours,
		now:           time.Now,
	}
}

// SetClock overrides the policy's clock (for tests).
func (p *Policy) SetClock(now func() time.Time) { p.now = now }

// CanSendNow reports whether a send is allowed at the current time in the
// given timezone. Unknown timezones fall back to UTC.
func (p *Policy) CanSendNow(timezone string) bool {
	t := p.localNow(timezone)

	if p.skipWeekends {
		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			return false
		}
	}
	if p.businessHours {
		if t.Hour() < businessStartHour || t.Hour() >= businessEndHour {
			return false
		}
	}
	return true
}

// NextSendTime returns when a deferred send should go out, evaluated in the
// given timezone. When every check is disabled the answer is now.
func (p *Policy) NextSendTime(timezone string) time.Time {
	t := p.localNow(timezone)
	if p.CanSendNow(timezone) {
		return t
	}

	next := NextBusinessTime(t)
	if !p.skipWeekends {
		// Weekends allowed: plain next day 09:00 without the weekend skip.
		next = t.AddDate(0, 0, 1)
		next = time.Date(next.Year(), next.Month(), next.Day(), businessStartHour, 0, 0, 0, t.Location())
	}
	return next
}

func (p *Policy) localNow(timezone string) time.Time {
	t := p.now()
	if timezone == "" || timezone == "UTC" {
		return t.UTC()
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("unknown timezone, falling back to UTC", "timezone", timezone)
		return t.UTC()
	}
	return t.In(loc)
}

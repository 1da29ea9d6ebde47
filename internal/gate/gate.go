// Package gate decides whether a day may be unlocked right now.
package gate

import (
	"time"

	"rvl-week-service/internal/domain"
)

// EventZone is the fixed UTC-3 offset the event schedule is published in.
// It deliberately ignores DST; reuse outside this event needs a named zone.
var EventZone = time.FixedZone("UTC-3", -3*60*60)

// UnlockInstant is when manual unlocking of day opens: 10:00 for the closing
// day 7, 19:30 for every other evening service.
func UnlockInstant(day domain.EventDay) time.Time {
	y, m, d := day.ScheduledDate.Date()
	if day.Number == 7 {
		return time.Date(y, m, d, 10, 0, 0, 0, EventZone)
	}
	return time.Date(y, m, d, 19, 30, 0, 0, EventZone)
}

// Evaluate decides whether day can be unlocked with method at now.
// The result must not be cached: now moves on.
func Evaluate(day domain.Day, all []domain.Day, now time.Time, elevated bool, method domain.UnlockMethod) domain.Decision {
	if elevated {
		return domain.Allowed
	}
	if day.Number > 1 {
		prev, ok := domain.FindDay(all, day.Number-1)
		if !ok || prev.Status == domain.DayLocked || prev.Status == "" {
			return domain.BlockedBySequence
		}
	}
	if method == domain.MethodManual && now.Before(UnlockInstant(day.EventDay)) {
		return domain.BlockedByTime
	}
	return domain.Allowed
}

// EvaluateAll returns the decision for both unlock methods.
func EvaluateAll(day domain.Day, all []domain.Day, now time.Time, elevated bool) (qr, manual domain.Decision) {
	return Evaluate(day, all, now, elevated, domain.MethodQRCode),
		Evaluate(day, all, now, elevated, domain.MethodManual)
}

// Views pairs every day with its decisions at now.
func Views(days []domain.Day, now time.Time, elevated bool) []domain.DayView {
	views := make([]domain.DayView, 0, len(days))
	for _, d := range days {
		qr, manual := EvaluateAll(d, days, now, elevated)
		views = append(views, domain.DayView{Day: d, QRCode: qr, Manual: manual})
	}
	return views
}

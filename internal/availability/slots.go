package availability

import "consultd/internal/domain"

// Accepts reports whether any window covers clock. Overlapping windows are
// independent, so one match is enough.
func Accepts(windows []domain.Window, clock string) bool {
	for _, w := range windows {
		if w.Covers(clock) {
			return true
		}
	}
	return false
}

// FreeWindows returns windows whose start is not among booked, in the
// configured order.
//
// Only the window start is compared: a booking at 10:00 for 30 minutes does
// not remove a window starting at 10:15.
func FreeWindows(windows []domain.Window, booked []string) []domain.Window {
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	out := make([]domain.Window, 0, len(windows))
	for _, w := range windows {
		if _, ok := taken[w.Start]; ok {
			continue
		}
		out = append(out, w)
	}
	return out
}

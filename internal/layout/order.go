package layout

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsorted is returned when the input of Compute is not in canonical
// order and the caller asked for validation instead of sorting.
var ErrUnsorted = errors.New("layout: events are not in canonical order")

// OrderError describes the first pair of events found out of order.
type OrderError struct {
	// Index is the position of the offending event, Prev the position of
	// the event of the same pass that precedes it.
	Index int
	Prev  int
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%s: event %d sorts before event %d", ErrUnsorted.Error(), e.Index, e.Prev)
}

func (e *OrderError) Unwrap() error {
	return ErrUnsorted
}

// Compare defines the canonical order of events:
//
//   - all-day events before timed events
//   - all-day events by StartDay, timed events by StartMillis
//   - then by end descending, so longer events take the leftmost columns
//   - then by title
//
// The title tie-break only makes the output stable; it is not needed for
// a correct layout.
func Compare(a, b *Event) int {
	aAll, bAll := a.IsAllDay(), b.IsAllDay()
	if aAll != bAll {
		if aAll {
			return -1
		}
		return 1
	}

	if aAll {
		if c := cmp.Compare(a.StartDay, b.StartDay); c != 0 {
			return c
		}
		if c := cmp.Compare(b.EndDay, a.EndDay); c != 0 {
			return c
		}
	} else {
		if c := cmp.Compare(a.StartMillis, b.StartMillis); c != 0 {
			return c
		}
		if c := cmp.Compare(b.EndMillis, a.EndMillis); c != 0 {
			return c
		}
	}

	return strings.Compare(a.Title, b.Title)
}

// Sort sorts events into canonical order in place. The sort is stable.
func Sort(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return Compare(&a, &b)
	})
}

// ValidateOrder checks that each pass of Compute (all-day and timed) would
// see its events in canonical order. All-day and timed events may be
// interleaved; only the order within each kind matters.
func ValidateOrder(events []Event) error {
	lastAllDay, lastTimed := -1, -1
	for i := range events {
		last := &lastTimed
		if events[i].IsAllDay() {
			last = &lastAllDay
		}
		if *last >= 0 && Compare(&events[*last], &events[i]) > 0 {
			return &OrderError{Index: i, Prev: *last}
		}
		*last = i
	}
	return nil
}

// sortedIndex returns the positions of events in canonical order without
// touching the caller's slice.
func sortedIndex(events []Event) []int {
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return Compare(&events[a], &events[b])
	})
	return idx
}

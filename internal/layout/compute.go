package layout

import (
	"errors"
	"fmt"
	"math/bits"
	"time"
)

// ColumnLimit is the capacity of the column mask.
const ColumnLimit = 64

// ErrColumnOverflow is returned under SaturateReject when more events are
// active at once than there are columns.
var ErrColumnOverflow = errors.New("layout: too many concurrent events")

// Saturation selects what happens when every column is taken.
type Saturation int

const (
	// SaturateClamp puts the extra events into the last column. They
	// collide with whatever already sits there.
	SaturateClamp Saturation = iota
	// SaturateReject fails the whole computation with ErrColumnOverflow.
	SaturateReject
)

// Ordering selects how Compute treats its input order.
type Ordering int

const (
	// OrderValidate rejects input that is not in canonical order.
	OrderValidate Ordering = iota
	// OrderSort lays events out in canonical order regardless of how the
	// caller arranged them. The caller's slice is not reordered.
	OrderSort
)

// Options tunes Compute. The zero value is usable.
type Options struct {
	// MinimumDuration is the shortest time a timed event occupies its
	// column, so very short events still get a legible rectangle.
	// Negative values count as zero.
	MinimumDuration time.Duration

	// MaxColumns is the number of columns available per pass. Values
	// outside 1..ColumnLimit mean ColumnLimit.
	MaxColumns int

	Saturation Saturation
	Ordering   Ordering
}

func (o Options) normalized() Options {
	if o.MinimumDuration < 0 {
		o.MinimumDuration = 0
	}
	if o.MaxColumns <= 0 || o.MaxColumns > ColumnLimit {
		o.MaxColumns = ColumnLimit
	}
	return o
}

// Result is the layout of one event: it is drawn in Column out of
// MaxColumns equal-width slots.
type Result struct {
	Column     int `json:"column"`
	MaxColumns int `json:"max_columns"`
}

// Compute lays out events and returns one Result per event, at the same
// index as the event. Events are not modified.
//
// Nil or empty input yields nil results and no error.
func Compute(events []Event, opts Options) ([]Result, error) {
	if len(events) == 0 {
		return nil, nil
	}
	opts = opts.normalized()

	var order []int
	switch opts.Ordering {
	case OrderSort:
		order = sortedIndex(events)
	default:
		if err := ValidateOrder(events); err != nil {
			return nil, err
		}
		order = make([]int, len(events))
		for i := range order {
			order[i] = i
		}
	}

	results := make([]Result, len(events))
	p := pass{events: events, results: results, opts: opts}
	if err := p.run(order, true); err != nil {
		return nil, err
	}
	if err := p.run(order, false); err != nil {
		return nil, err
	}
	return results, nil
}

type pass struct {
	events  []Event
	results []Result
	opts    Options

	active []int
	group  []int
	mask   uint64
	width  int
}

// run scans one kind of event (all-day or timed) in the given order.
func (p *pass) run(order []int, allDay bool) error {
	p.active = p.active[:0]
	p.group = p.group[:0]
	p.mask = 0
	p.width = 0

	minDur := p.opts.MinimumDuration.Milliseconds()

	for _, idx := range order {
		ev := &p.events[idx]
		if ev.IsAllDay() != allDay {
			continue
		}

		if allDay {
			p.evictAllDay(ev)
		} else {
			p.evictTimed(ev, minDur)
		}

		// Nothing active any more: the previous group is complete.
		if len(p.active) == 0 {
			p.closeGroup()
		}

		col, ok := firstFreeColumn(p.mask, p.opts.MaxColumns)
		if !ok {
			if p.opts.Saturation == SaturateReject {
				return fmt.Errorf("%w: %d active, %d columns", ErrColumnOverflow, len(p.active)+1, p.opts.MaxColumns)
			}
			col = p.opts.MaxColumns - 1
		}
		p.mask |= 1 << uint(col)
		p.results[idx].Column = col

		p.active = append(p.active, idx)
		p.group = append(p.group, idx)
		if len(p.active) > p.width {
			p.width = len(p.active)
		}
	}

	p.closeGroup()
	return nil
}

func (p *pass) closeGroup() {
	for _, idx := range p.group {
		p.results[idx].MaxColumns = p.width
	}
	p.group = p.group[:0]
	p.width = 0
	p.mask = 0
}

// evictAllDay drops active events whose day span no longer touches ev.
func (p *pass) evictAllDay(ev *Event) {
	kept := p.active[:0]
	for _, idx := range p.active {
		a := &p.events[idx]
		if a.EndDay < ev.StartDay || a.StartDay > ev.EndDay {
			p.mask &^= 1 << uint(p.results[idx].Column)
			continue
		}
		kept = append(kept, idx)
	}
	p.active = kept
}

// evictTimed drops active events that have ended by the time ev starts.
// An event is considered to last at least minDur.
func (p *pass) evictTimed(ev *Event, minDur int64) {
	kept := p.active[:0]
	for _, idx := range p.active {
		a := &p.events[idx]
		dur := max(a.DurationMillis(), minDur)
		if a.StartMillis+dur <= ev.StartMillis {
			p.mask &^= 1 << uint(p.results[idx].Column)
			continue
		}
		kept = append(kept, idx)
	}
	p.active = kept
}

// firstFreeColumn returns the lowest clear bit of mask below limit.
func firstFreeColumn(mask uint64, limit int) (int, bool) {
	col := bits.TrailingZeros64(^mask)
	if col >= limit {
		return 0, false
	}
	return col, true
}

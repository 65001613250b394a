// Cron engine: hand-written five-field grammar (minute, hour, day-of-month,
// month, day-of-week) per spec §6/§4.3/Non-goals — no cron library is used,
// by explicit specification mandate.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed five-field cron expression.
type CronSchedule struct {
	minute  fieldSet
	hour    fieldSet
	dom     fieldSet
	month   fieldSet
	dow     fieldSet
	domWild bool // dom field was exactly "*"
	dowWild bool // dow field was exactly "*"
}

// fieldSet is the set of accepted values for one cron field, represented as
// a bitmask-by-membership map for O(1) membership tests.
type fieldSet map[int]struct{}

func (fs fieldSet) has(v int) bool { _, ok := fs[v]; return ok }

// ParseCron parses the bit-exact five-field grammar (spec §6): each field is
// '*', 'a', 'a-b', '*/n', or a comma list of the preceding forms.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	minute, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute field: %w", err)
	}
	hour, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour field: %w", err)
	}
	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("day-of-month field: %w", err)
	}
	month, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month field: %w", err)
	}
	dow, err := parseField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("day-of-week field: %w", err)
	}

	return &CronSchedule{
		minute:  minute,
		hour:    hour,
		dom:     dom,
		month:   month,
		dow:     dow,
		domWild: fields[2] == "*",
		dowWild: fields[4] == "*",
	}, nil
}

func parseField(field string, min, max int) (fieldSet, error) {
	fs := make(fieldSet)
	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, min, max, fs); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func parsePart(part string, min, max int, fs fieldSet) error {
	// step: "*/n" or "a-b/n"
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		base := part[:idx]
		stepStr := part[idx+1:]
		step, err := strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return fmt.Errorf("invalid step %q", part)
		}
		lo, hi := min, max
		if base != "*" {
			var err2 error
			lo, hi, err2 = parseRange(base, min, max)
			if err2 != nil {
				return err2
			}
		}
		for v := lo; v <= hi; v += step {
			fs[v] = struct{}{}
		}
		return nil
	}

	if part == "*" {
		for v := min; v <= max; v++ {
			fs[v] = struct{}{}
		}
		return nil
	}

	if strings.Contains(part, "-") {
		lo, hi, err := parseRange(part, min, max)
		if err != nil {
			return err
		}
		for v := lo; v <= hi; v++ {
			fs[v] = struct{}{}
		}
		return nil
	}

	v, err := strconv.Atoi(part)
	if err != nil || v < min || v > max {
		return fmt.Errorf("invalid value %q (range %d-%d)", part, min, max)
	}
	fs[v] = struct{}{}
	return nil
}

func parseRange(part string, min, max int) (int, int, error) {
	bounds := strings.SplitN(part, "-", 2)
	if len(bounds) != 2 {
		return 0, 0, fmt.Errorf("invalid range %q", part)
	}
	lo, err1 := strconv.Atoi(bounds[0])
	hi, err2 := strconv.Atoi(bounds[1])
	if err1 != nil || err2 != nil || lo < min || hi > max || lo > hi {
		return 0, 0, fmt.Errorf("invalid range %q (bounds %d-%d)", part, min, max)
	}
	return lo, hi, nil
}

// NextFire computes the next fire time strictly after `after`, at second
// resolution, at least now+1 second (spec §4.3: "Computes next-fire >=
// now+1 second"). dom and dow combine with OR when both are restricted
// (non-'*'); otherwise AND — spec §6 bit-exact rule.
func (c *CronSchedule) NextFire(after time.Time) time.Time {
	t := after.Add(time.Second).Truncate(time.Second)
	if t.Second() != 0 {
		// fires happen on whole minutes: round up to the next one
		t = t.Truncate(time.Minute).Add(time.Minute)
	}
	// search forward up to 4 years of minutes; a valid cron expression
	// always fires within that bound.
	limit := t.AddDate(4, 0, 0)
	for t.Before(limit) {
		if !c.month.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
			continue
		}
		if !c.domDowMatch(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
			continue
		}
		if !c.hour.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Hour)
			continue
		}
		if !c.minute.has(t.Minute()) {
			t = t.Add(time.Minute).Truncate(time.Minute)
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	}
	return time.Time{}
}

func (c *CronSchedule) domDowMatch(t time.Time) bool {
	domOK := c.dom.has(t.Day())
	dowOK := c.dow.has(int(t.Weekday()))
	if c.domWild && c.dowWild {
		return true
	}
	if c.domWild {
		return dowOK
	}
	if c.dowWild {
		return domOK
	}
	return domOK || dowOK
}

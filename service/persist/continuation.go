package persist

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateIDContinuation is a chain-native cursor for listings ordered by (date, id).
// It serializes as millis_id.
type DateIDContinuation struct {
	Date time.Time
	ID   string
}

func (c DateIDContinuation) String() string {
	return fmt.Sprintf("%d_%s", c.Date.UnixMilli(), c.ID)
}

// ParseDateIDContinuation parses millis_id. An empty string yields ok=false.
func ParseDateIDContinuation(s string) (DateIDContinuation, bool) {
	millis, id, found := strings.Cut(s, "_")
	if !found || id == "" {
		return DateIDContinuation{}, false
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return DateIDContinuation{}, false
	}
	return DateIDContinuation{Date: time.UnixMilli(ms).UTC(), ID: id}, true
}

// Compare orders by date, then id. Dates are compared at millisecond precision
// so that a parsed continuation compares equal to the entity it was built from.
func (c DateIDContinuation) Compare(o DateIDContinuation) int {
	a, b := c.Date.UnixMilli(), o.Date.UnixMilli()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return strings.Compare(c.ID, o.ID)
}

// After reports whether c comes after o in a date-descending listing
func (c DateIDContinuation) After(o DateIDContinuation) bool {
	return c.Compare(o) < 0
}

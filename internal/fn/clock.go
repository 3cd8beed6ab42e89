package fn

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timezone handling for the "now"-like volatile functions. Deterministic
// evaluation requires an injectable clock; builtins never read the system
// clock directly. Under deterministic mode only UTC and fixed offsets are
// permitted: a fixed timestamp combined with the ambient local timezone is
// contradictory.

type tzKind uint8

const (
	tzLocal tzKind = iota
	tzUTC
	tzFixed
)

// TimeZoneSpec names the timezone date/time functions observe.
type TimeZoneSpec struct {
	kind      tzKind
	offsetSec int
}

// LocalTZ observes the ambient system timezone.
func LocalTZ() TimeZoneSpec { return TimeZoneSpec{kind: tzLocal} }

// UTCTZ observes UTC.
func UTCTZ() TimeZoneSpec { return TimeZoneSpec{kind: tzUTC} }

// FixedOffsetTZ observes a fixed offset east of UTC.
func FixedOffsetTZ(seconds int) TimeZoneSpec {
	return TimeZoneSpec{kind: tzFixed, offsetSec: seconds}
}

// ParseTimeZone accepts "local" (or empty), "utc", and fixed offsets in the
// forms "+02:00", "-05:30", "+0200".
func ParseTimeZone(s string) (TimeZoneSpec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return LocalTZ(), nil
	case "utc":
		return UTCTZ(), nil
	}
	t := strings.TrimSpace(s)
	sign := 1
	switch t[0] {
	case '+':
		t = t[1:]
	case '-':
		sign = -1
		t = t[1:]
	default:
		return TimeZoneSpec{}, fmt.Errorf("unrecognized timezone %q (want \"utc\", \"local\", or a fixed offset like \"+02:00\")", s)
	}
	hh, mm := t, "0"
	if h, m, ok := strings.Cut(t, ":"); ok {
		hh, mm = h, m
	} else if len(t) == 4 {
		hh, mm = t[:2], t[2:]
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h > 23 || m > 59 || h < 0 || m < 0 {
		return TimeZoneSpec{}, fmt.Errorf("malformed fixed offset %q", s)
	}
	return FixedOffsetTZ(sign * (h*3600 + m*60)), nil
}

// IsLocal reports whether this spec tracks the ambient timezone.
func (tz TimeZoneSpec) IsLocal() bool { return tz.kind == tzLocal }

// ValidateForDeterminism rejects specs that cannot yield reproducible
// results under a fixed timestamp.
func (tz TimeZoneSpec) ValidateForDeterminism() error {
	if tz.kind == tzLocal {
		return fmt.Errorf("deterministic mode forbids the local timezone (use \"utc\" or a fixed offset)")
	}
	return nil
}

// Location returns the *time.Location the spec names. Local resolves to the
// process-ambient location.
func (tz TimeZoneSpec) Location() *time.Location {
	switch tz.kind {
	case tzUTC:
		return time.UTC
	case tzFixed:
		return time.FixedZone(fmt.Sprintf("UTC%+d", tz.offsetSec/3600), tz.offsetSec)
	}
	return time.Local
}

func (tz TimeZoneSpec) String() string {
	switch tz.kind {
	case tzUTC:
		return "utc"
	case tzFixed:
		sign, off := "+", tz.offsetSec
		if off < 0 {
			sign, off = "-", -off
		}
		return fmt.Sprintf("%s%02d:%02d", sign, off/3600, off%3600/60)
	}
	return "local"
}

// Clock provides "now" to the volatile date/time builtins.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system clock in a configured timezone.
type SystemClock struct {
	TZ TimeZoneSpec
}

func (c SystemClock) Now() time.Time {
	return time.Now().In(c.TZ.Location())
}

// FixedClock always reports the same instant; it backs deterministic
// evaluation.
type FixedClock struct {
	Timestamp time.Time
	TZ        TimeZoneSpec
}

// NewFixedClock builds a deterministic clock, rejecting timezone specs that
// are not reproducible.
func NewFixedClock(ts time.Time, tz TimeZoneSpec) (FixedClock, error) {
	if err := tz.ValidateForDeterminism(); err != nil {
		return FixedClock{}, err
	}
	return FixedClock{Timestamp: ts, TZ: tz}, nil
}

func (c FixedClock) Now() time.Time {
	return c.Timestamp.In(c.TZ.Location())
}

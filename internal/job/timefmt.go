package job

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// Layout is the text form of a due time.
const Layout = "2006-01-02 15:04:05"

var ErrBadTime = errors.New("bad time format, expected: YYYY-MM-DD HH:MM:SS")

// Anchored at the start only: anything after the six fields is ignored.
var reDue = regexp.MustCompile(`^\s*(\d{4})-(\d{2})-(\d{2}) (\d{2}):(\d{2}):(\d{2})`)

// ParseDue converts "YYYY-MM-DD HH:MM:SS" into an instant in loc (nil means
// time.Local). Out-of-range fields are normalized by time.Date.
//
// An instant equal to the Unix epoch is returned as the zero time, which is
// the due-immediately sentinel once persisted.
func ParseDue(text string, loc *time.Location) (time.Time, error) {
	m := reDue.FindStringSubmatch(text)
	if len(m) != 7 {
		return time.Time{}, ErrBadTime
	}
	var f [6]int
	for i := range f {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return time.Time{}, ErrBadTime
		}
		f[i] = n
	}
	if loc == nil {
		loc = time.Local
	}
	t := time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, loc)
	if t.Unix() == 0 {
		return time.Time{}, nil
	}
	return t, nil
}

// FormatDue renders t with Layout in loc (nil means time.Local).
// The zero time renders as "".
func FormatDue(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(Layout)
}

package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultDateFormat is the format of now and dateTimeShift without one.
const DefaultDateFormat = "yyyy-MM-dd'T'HH:mm:ss.SSSxxx"

// FormatDate formats t with date-fns style tokens (yyyy, MM, dd, HH, mm,
// ss, SSS, xxx, EEEE, ...). Text in single quotes is literal; two single
// quotes in a row stand for one.
func FormatDate(t time.Time, pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]
		if c == '\'' {
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			i++
			for i < len(pattern) {
				if pattern[i] == '\'' {
					if i+1 < len(pattern) && pattern[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteByte(pattern[i])
				i++
			}
			continue
		}
		if !isTokenLetter(c) {
			b.WriteByte(c)
			i++
			continue
		}
		j := i
		for j < len(pattern) && pattern[j] == c {
			j++
		}
		b.WriteString(formatToken(t, c, j-i))
		i = j
	}
	return b.String()
}

func isTokenLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func pad(n, width int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return "-" + pad(-n, width)
	}
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func formatToken(t time.Time, c byte, n int) string {
	switch c {
	case 'y', 'Y', 'R', 'u':
		year := t.Year()
		if c == 'Y' || c == 'R' {
			year, _ = t.ISOWeek()
		}
		if n == 2 {
			return pad(year%100, 2)
		}
		return pad(year, n)
	case 'Q', 'q':
		q := (int(t.Month())-1)/3 + 1
		if n >= 3 {
			return "Q" + strconv.Itoa(q)
		}
		return pad(q, n)
	case 'M', 'L':
		switch {
		case n >= 5:
			return t.Month().String()[:1]
		case n == 4:
			return t.Month().String()
		case n == 3:
			return t.Month().String()[:3]
		}
		return pad(int(t.Month()), n)
	case 'w', 'I':
		_, week := t.ISOWeek()
		return pad(week, n)
	case 'd':
		return pad(t.Day(), n)
	case 'D':
		return pad(t.YearDay(), n)
	case 'E', 'e', 'c':
		if (c == 'e' || c == 'c') && n <= 2 {
			return pad(int(t.Weekday())+1, n)
		}
		switch {
		case n == 4:
			return t.Weekday().String()
		case n == 5:
			return t.Weekday().String()[:1]
		case n >= 6:
			return t.Weekday().String()[:2]
		}
		return t.Weekday().String()[:3]
	case 'i':
		wd := int(t.Weekday())
		if wd == 0 {
			wd = 7
		}
		return pad(wd, n)
	case 'a':
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return pad(h, n)
	case 'H':
		return pad(t.Hour(), n)
	case 'K':
		return pad(t.Hour()%12, n)
	case 'k':
		h := t.Hour()
		if h == 0 {
			h = 24
		}
		return pad(h, n)
	case 'm':
		return pad(t.Minute(), n)
	case 's':
		return pad(t.Second(), n)
	case 'S':
		frac := fmt.Sprintf("%09d", t.Nanosecond())
		if n > 9 {
			n = 9
		}
		return frac[:n]
	case 'X', 'x':
		_, offset := t.Zone()
		if c == 'X' && offset == 0 {
			return "Z"
		}
		return formatOffset(offset, n)
	case 'O', 'z':
		_, offset := t.Zone()
		return "GMT" + formatOffset(offset, 3)
	case 't':
		return strconv.FormatInt(t.Unix(), 10)
	case 'T':
		return strconv.FormatInt(t.UnixMilli(), 10)
	}
	return strings.Repeat(string(c), n)
}

func formatOffset(offset, n int) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours, minutes := offset/3600, (offset%3600)/60
	switch n {
	case 1:
		if minutes == 0 {
			return sign + pad(hours, 2)
		}
		return sign + pad(hours, 2) + pad(minutes, 2)
	case 2:
		return sign + pad(hours, 2) + pad(minutes, 2)
	}
	return sign + pad(hours, 2) + ":" + pad(minutes, 2)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"15:04:05",
	"15:04",
}

// ParseDate accepts times, millisecond timestamps and the common textual
// forms. Values without a zone are read in loc.
func ParseDate(v any, loc *time.Location) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case float64:
		return time.UnixMilli(int64(t)).In(loc), true
	case int:
		return time.UnixMilli(int64(t)).In(loc), true
	case SafeString:
		return ParseDate(string(t), loc)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if i := strings.Index(s, " ("); i > 0 {
			s = s[:i]
		}
		for _, layout := range dateLayouts {
			if d, err := time.ParseInLocation(layout, s, loc); err == nil {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

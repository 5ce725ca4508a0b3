// Package humanfmt provides human-readable formatting for line counts and byte sizes.
package humanfmt

import (
	"fmt"
	"strconv"
)

const (
	thousand = 1000
	million  = 1000 * thousand
	billion  = 1000 * million
)

// Lines formats an approximate line count as a lower bound, e.g. "1.2M+", "45K+", "812+".
// Millions keep one decimal; thousands are truncated.
func Lines(n int64) string {
	if n < 0 {
		return strconv.FormatInt(n, 10)
	}

	switch {
	case n >= billion:
		return fmt.Sprintf("%.1fB+", float64(n)/billion)
	case n >= million:
		return fmt.Sprintf("%.1fM+", float64(n)/million)
	case n >= thousand:
		return fmt.Sprintf("%dK+", n/thousand)
	default:
		return fmt.Sprintf("%d+", n)
	}
}

// Count formats n with thousands separators: 12345 -> "12,345".
func Count(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	out := make([]byte, 0, len(s)+len(s)/3+1)
	if neg {
		out = append(out, '-')
	}
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 && out[len(out)-1] != '-' {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}

// KB formats a byte size in whole kibibytes, e.g. "12KB".
func KB(b int64) string {
	return fmt.Sprintf("%dKB", b/1024)
}

package util

import (
	"fmt"
	"strconv"
	"time"
)

// FormatNumber formats an int64 with K/M suffix for readability.
// Examples: 500 -> "500", 1500 -> "1.5K", 1500000 -> "1.5M"
func FormatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// FormatPercent renders part/total as "25.0%". A zero total gives "-".
func FormatPercent(part, total int64) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}

// FormatWeight prints a variant weight without trailing zeros.
// Examples: 0.5 -> "0.5", 2 -> "2"
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// FormatDateTime formats t as "2006-01-02 15:04" in UTC. The zero time
// gives "never".
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

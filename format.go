package ferriself

import "fmt"

// FormatNanos renders a nanosecond duration the way the bot displays times.
func FormatNanos(v float64) string {
	if v > 1e9 {
		return fmt.Sprintf("%.2fs", v/1e9)
	}
	if v > 1e6 {
		return fmt.Sprintf("%.2fms", v/1e6)
	}
	if v > 1e3 {
		return fmt.Sprintf("%.2fµs", v/1e3)
	}
	// dont push padding zeroes because resolution is 1 ns
	return fmt.Sprintf("%.0fns", v)
}

package export

import "fmt"

// FormatSplit formats milliseconds as MM:SS,T with tenths rounded to the
// nearest 100ms. Negative durations format as zero.
func FormatSplit(ms int64) string {
	if ms < 0 {
		return "00:00,0"
	}
	tenths := (ms + 50) / 100
	totalSeconds := tenths / 10
	return fmt.Sprintf("%02d:%02d,%d", totalSeconds/60, totalSeconds%60, tenths%10)
}

// FormatClock formats milliseconds as MM:SS, truncating partial seconds
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSeconds := ms / 1000
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}

// FormatDifference formats split-ideal for the export table:
// "+" when slower than ideal, "-" when faster, "00:00,0" when equal.
func FormatDifference(split, ideal int64) string {
	d := split - ideal
	switch {
	case d == 0:
		return "00:00,0"
	case d > 0:
		return "+" + FormatSplit(d)
	default:
		return "-" + FormatSplit(-d)
	}
}

// FormatDelta renders a guidance diff (ideal - split) for the status line.
// An early split (positive diff) shows as time to lose.
func FormatDelta(diff int64) string {
	sign := ""
	abs := diff
	switch {
	case diff > 0:
		sign = "-"
	case diff < 0:
		sign = "+"
		abs = -diff
	}
	return "Tiempo: " + sign + FormatSplit(abs)
}

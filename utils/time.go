package utils

import (
	"fmt"
	"math"
)

// FormatASSTimestamp formats seconds to ASS timestamp format (H:MM:SS.cc)
func FormatASSTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	cs := int(math.Round(seconds * 100))

	h := cs / 360000
	m := (cs % 360000) / 6000
	s := (cs % 6000) / 100
	c := cs % 100

	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, c)
}

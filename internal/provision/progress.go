package provision

import (
	"fmt"
	"math"
	"strings"
)

// barWidth is the fixed width of the rendered progress bar in glyphs.
const barWidth = 20

// ProgressLine renders the per-cycle progress message: a fixed-width bar of
// filled/unfilled glyphs, the rounded percentage, and the literal i/n count.
func ProgressLine(i, n int) string {
	if n <= 0 {
		n = 1
	}
	pct := int(math.Round(100 * float64(i) / float64(n)))
	filled := pct * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("-", barWidth-filled)
	return fmt.Sprintf("[%s] %d%%  %d/%d groups created", bar, pct, i, n)
}

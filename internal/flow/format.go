package flow

import (
	"fmt"
	"math"
)

// WhatsApp markup helpers.

func bold(s string) string      { return "*" + s + "*" }
func italic(s string) string    { return "_" + s + "_" }
func monospace(s string) string { return "```" + s + "```" }
func code(s string) string      { return "`" + s + "`" }

// formatPrice renders whole amounts without decimals: 25 -> "$25", 12.5 -> "$12.50".
func formatPrice(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("$%.0f", v)
	}
	return fmt.Sprintf("$%.2f", v)
}

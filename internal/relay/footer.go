package relay

import (
	"fmt"
	"strconv"
	"strings"
)

// composeFooter renders the trailing usage annotation. It is always appended
// after the visible reply and never alters already-emitted content.
func composeFooter(model string, promptTokens, completionTokens int, modelDowngraded, budgetWarning bool) string {
	total := promptTokens + completionTokens

	parts := []string{
		fmt.Sprintf("\n\n---\n*Model: %s", model),
		fmt.Sprintf("Tokens: %s (%s in / %s out)",
			groupThousands(total), groupThousands(promptTokens), groupThousands(completionTokens)),
	}

	if modelDowngraded {
		parts = append(parts, "Note: Model was adjusted based on your access level")
	}

	if budgetWarning {
		parts = append(parts, "Warning: You are approaching your monthly token budget")
	}

	return strings.Join(parts, " | ") + "*"
}

// groupThousands formats a non-negative count with comma separators.
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// Package budget renders a caller's token budget status as a readable
// markdown summary. Budget enforcement happens in Claude Engine; this is
// display only.
package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dynamo-ai/engine-relay/internal/domain"
	"github.com/dynamo-ai/engine-relay/internal/engine"
	"github.com/dynamo-ai/engine-relay/internal/identity"
)

const barWidth = 20

type Checker struct {
	engine *engine.Client
}

func NewChecker(e *engine.Client) *Checker {
	return &Checker{engine: e}
}

// Check fetches and renders the caller's budget status. Like the chat relay,
// every outcome is message text; nothing propagates as an error.
func (c *Checker) Check(ctx context.Context, caller *identity.Caller) string {
	if caller == nil {
		return "**Error**: Unable to identify your account. Please sign in and try again."
	}

	id := identity.Resolve(caller)

	res, err := c.engine.Budget(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEngineUnreachable):
			return "**Connection Error**: Unable to reach the Claude Engine service. " +
				"Please try again in a moment."
		case errors.Is(err, domain.ErrEngineTimeout):
			return "**Timeout**: Budget check took too long. Please try again."
		default:
			return fmt.Sprintf("**Error**: %v", err)
		}
	}

	if res.Status == http.StatusForbidden {
		return "**Access Denied**: You can only view your own budget."
	}

	if res.Status != http.StatusOK {
		msg := "Unable to fetch budget"
		var env domain.ErrorEnvelope
		if json.Unmarshal(res.Body, &env) == nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return fmt.Sprintf("**Error**: %s", msg)
	}

	var status domain.BudgetStatus
	if err := json.Unmarshal(res.Body, &status); err != nil {
		return fmt.Sprintf("**Error**: %v", err)
	}

	return Render(status, id.Email)
}

// Render formats a BudgetStatus as a markdown summary: status line, metric
// table, and for limited budgets a textual progress bar plus an advisory
// paragraph when warning or exceeded.
func Render(b domain.BudgetStatus, userEmail string) string {
	role := b.Role
	if role == "" {
		role = "unknown"
	}
	resetDate := b.ResetDate
	if resetDate == "" {
		resetDate = "unknown"
	}

	usageStr := groupThousands(b.CurrentUsage)

	var limitStr, remainingStr, bar, status string
	if b.MonthlyLimit == nil {
		limitStr = "Unlimited"
		remainingStr = "Unlimited"
		status = "OK"
	} else {
		limitStr = groupThousands(*b.MonthlyLimit)
		remainingStr = "N/A"
		if b.Remaining != nil {
			remainingStr = groupThousands(*b.Remaining)
		}
		bar = progressBar(b.PercentUsed, b.Exceeded)
		switch {
		case b.Exceeded:
			status = "EXCEEDED"
		case b.WarningThreshold:
			status = "WARNING"
		default:
			status = "OK"
		}
	}

	lines := []string{
		fmt.Sprintf("## Token Budget — %s", userEmail),
		"",
		fmt.Sprintf("**Status**: %s", status),
		fmt.Sprintf("**Role**: %s", role),
		"",
		"| Metric | Value |",
		"|--------|-------|",
		fmt.Sprintf("| Used this month | %s tokens |", usageStr),
		fmt.Sprintf("| Monthly limit | %s tokens |", limitStr),
		fmt.Sprintf("| Remaining | %s tokens |", remainingStr),
		fmt.Sprintf("| Budget resets | %s |", resetDate),
	}

	if bar != "" {
		lines = append(lines, "", fmt.Sprintf("**Usage**: %s", bar))
	}

	if b.MonthlyLimit != nil && b.Exceeded {
		lines = append(lines, "", "---",
			"Your monthly token budget has been exceeded. "+
				"Requests may be blocked depending on enforcement settings. "+
				"Contact your administrator to request an increase.")
	} else if b.MonthlyLimit != nil && b.WarningThreshold {
		lines = append(lines, "", "---",
			"You are approaching your monthly token budget limit. "+
				"Consider reducing usage or contact your administrator.")
	}

	return strings.Join(lines, "\n")
}

// progressBar draws one fill character per 5 percentage points, capped at
// barWidth. Exceeded budgets fill with '#', others with '='.
func progressBar(percentUsed float64, exceeded bool) string {
	filled := int(percentUsed / 5)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}

	fill := "="
	if exceeded {
		fill = "#"
	}

	return fmt.Sprintf("`[%s%s]` %s%%",
		strings.Repeat(fill, filled),
		strings.Repeat(".", barWidth-filled),
		formatPercent(percentUsed),
	)
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	if len(s) > 3 {
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
		s = b.String()
	}

	if neg {
		return "-" + s
	}
	return s
}

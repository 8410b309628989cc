package provision

import (
	"context"
	"fmt"
	"log/slog"
)

// DatabaseName is the Superset data source the datasets are built on.
const DatabaseName = "Dynamo AI"

type datasetDef struct {
	name        string
	sql         string
	description string
}

type chartDef struct {
	name    string
	dataset string
	vizType string
	params  map[string]interface{}
}

type dashboardDef struct {
	title  string
	slug   string
	charts []string
}

var datasets = []datasetDef{
	{
		name: "daily_active_users",
		sql: `SELECT
    DATE(timestamp) AS day,
    COUNT(DISTINCT user_id) AS active_users
FROM audit_logs
WHERE status = 'success'
    AND timestamp >= CURRENT_DATE - INTERVAL '30 days'
GROUP BY DATE(timestamp)
ORDER BY day`,
		description: "Count of distinct active users per day over the last 30 days.",
	},
	{
		name: "total_tokens_consumed",
		sql: `SELECT
    SUM(input_tokens + output_tokens) AS total_tokens,
    SUM(input_tokens + output_tokens) FILTER (
        WHERE created_at >= DATE_TRUNC('month', CURRENT_DATE)
    ) AS tokens_this_month
FROM token_usage`,
		description: "Total token consumption with current-month total.",
	},
	{
		name: "tokens_by_model",
		sql: `SELECT
    model,
    DATE(created_at) AS day,
    SUM(input_tokens + output_tokens) AS total_tokens
FROM token_usage
WHERE created_at >= CURRENT_DATE - INTERVAL '30 days'
GROUP BY model, DATE(created_at)
ORDER BY day`,
		description: "Daily token consumption broken down by model.",
	},
	{
		name: "top_users_by_tokens",
		sql: `SELECT
    COALESCE(user_email, user_id) AS user_label,
    SUM(input_tokens + output_tokens) AS total_tokens
FROM token_usage
WHERE created_at >= DATE_TRUNC('month', CURRENT_DATE)
GROUP BY user_label
ORDER BY total_tokens DESC
LIMIT 20`,
		description: "Top 20 users by token consumption this month.",
	},
	{
		name: "budget_utilization",
		sql: `SELECT
    user_id,
    role,
    monthly_limit,
    current_usage,
    ROUND(current_usage::numeric / GREATEST(monthly_limit, 1) * 100, 1) AS percent_used,
    CASE
        WHEN monthly_limit IS NULL THEN 'unlimited'
        WHEN current_usage > monthly_limit THEN 'exceeded'
        WHEN current_usage > monthly_limit * 0.8 THEN 'warning'
        ELSE 'ok'
    END AS budget_status
FROM user_budgets
WHERE period_start = DATE_TRUNC('month', CURRENT_DATE)::date
ORDER BY percent_used DESC NULLS LAST`,
		description: "Per-user budget utilization for the current month.",
	},
	{
		name: "error_rates",
		sql: `SELECT
    DATE(timestamp) AS day,
    status,
    COUNT(*) AS request_count
FROM audit_logs
WHERE timestamp >= CURRENT_DATE - INTERVAL '30 days'
GROUP BY DATE(timestamp), status
ORDER BY day`,
		description: "Daily request counts by outcome status.",
	},
}

var charts = []chartDef{
	{
		name:    "Active Users (Daily)",
		dataset: "daily_active_users",
		vizType: "echarts_timeseries_line",
		params: map[string]interface{}{
			"x_axis":          "day",
			"metrics":         []interface{}{simpleMetric("Active Users", "active_users", "MAX")},
			"time_grain_sqla": "P1D",
			"row_limit":       100,
			"color_scheme":    "supersetColors",
			"show_legend":     true,
		},
	},
	{
		name:    "Total Tokens Consumed",
		dataset: "total_tokens_consumed",
		vizType: "big_number_total",
		params: map[string]interface{}{
			"metric":        simpleMetric("Total Tokens", "tokens_this_month", "MAX"),
			"subheader":     "This month",
			"y_axis_format": ",.0f",
			"color_scheme":  "supersetColors",
		},
	},
	{
		name:    "Tokens by Model",
		dataset: "tokens_by_model",
		vizType: "echarts_area",
		params: map[string]interface{}{
			"x_axis":          "day",
			"groupby":         []string{"model"},
			"metrics":         []interface{}{simpleMetric("Tokens", "total_tokens", "MAX")},
			"stack":           true,
			"time_grain_sqla": "P1D",
			"row_limit":       1000,
			"color_scheme":    "supersetColors",
			"show_legend":     true,
		},
	},
	{
		name:    "Top 20 Users by Token Consumption",
		dataset: "top_users_by_tokens",
		vizType: "echarts_timeseries_bar",
		params: map[string]interface{}{
			"x_axis":        "user_label",
			"metrics":       []interface{}{simpleMetric("Total Tokens", "total_tokens", "MAX")},
			"row_limit":     20,
			"color_scheme":  "supersetColors",
			"show_legend":   false,
			"y_axis_format": ",.0f",
		},
	},
	{
		name:    "Budget Utilization by User",
		dataset: "budget_utilization",
		vizType: "table",
		params: map[string]interface{}{
			"all_columns": []string{"user_id", "role", "monthly_limit", "current_usage", "percent_used", "budget_status"},
			"row_limit":   100,
			"order_desc":  true,
		},
	},
	{
		name:    "Request Outcomes Over Time",
		dataset: "error_rates",
		vizType: "echarts_area",
		params: map[string]interface{}{
			"x_axis":          "day",
			"groupby":         []string{"status"},
			"metrics":         []interface{}{simpleMetric("Requests", "request_count", "MAX")},
			"stack":           true,
			"time_grain_sqla": "P1D",
			"row_limit":       1000,
			"color_scheme":    "supersetColors",
			"show_legend":     true,
		},
	},
}

var dashboards = []dashboardDef{
	{
		title: "Executive Overview",
		slug:  "executive-overview",
		charts: []string{
			"Active Users (Daily)",
			"Total Tokens Consumed",
			"Tokens by Model",
			"Request Outcomes Over Time",
		},
	},
	{
		title: "User Leaderboard",
		slug:  "user-leaderboard",
		charts: []string{
			"Top 20 Users by Token Consumption",
			"Budget Utilization by User",
		},
	},
}

func simpleMetric(label, column, aggregate string) map[string]interface{} {
	return map[string]interface{}{
		"label":          label,
		"expressionType": "SIMPLE",
		"column":         map[string]interface{}{"column_name": column},
		"aggregate":      aggregate,
	}
}

// Run provisions all datasets, charts and dashboards against an
// authenticated client. Existing objects are left untouched.
func Run(ctx context.Context, c *Client) error {
	dbID, err := c.DatabaseID(ctx, DatabaseName)
	if err != nil {
		return err
	}
	slog.Info("resolved database", "name", DatabaseName, "id", dbID)

	datasetIDs := make(map[string]int, len(datasets))
	for _, ds := range datasets {
		id, err := c.EnsureDataset(ctx, dbID, ds.name, ds.sql, ds.description)
		if err != nil {
			return err
		}
		datasetIDs[ds.name] = id
	}

	chartIDs := make(map[string]int, len(charts))
	for _, ch := range charts {
		dsID, ok := datasetIDs[ch.dataset]
		if !ok {
			return fmt.Errorf("chart %q references unknown dataset %q", ch.name, ch.dataset)
		}
		id, err := c.EnsureChart(ctx, ch.name, ch.vizType, dsID, ch.params)
		if err != nil {
			return err
		}
		chartIDs[ch.name] = id
	}

	for _, d := range dashboards {
		ids := make([]int, 0, len(d.charts))
		for _, name := range d.charts {
			if id, ok := chartIDs[name]; ok {
				ids = append(ids, id)
			}
		}
		if _, err := c.EnsureDashboard(ctx, d.title, d.slug, ids); err != nil {
			return err
		}
	}

	slog.Info("provisioning complete",
		"datasets", len(datasetIDs),
		"charts", len(chartIDs),
		"dashboards", len(dashboards),
	)

	return nil
}

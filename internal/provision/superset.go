// Package provision creates the usage analytics dashboards in Apache
// Superset. Everything is create-if-absent: re-running against an already
// provisioned instance is a no-op.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dynamo-ai/engine-relay/internal/httputil"
)

// Client is a minimal Superset REST API client.
type Client struct {
	baseURL     string
	http        *http.Client
	accessToken string
	csrfToken   string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httputil.NewClient(httputil.LookupConfig()),
	}
}

// Login authenticates and stores the access and CSRF tokens used by all
// later calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload := map[string]interface{}{
		"username": username,
		"password": password,
		"provider": "db",
		"refresh":  true,
	}

	var loginResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/security/login", payload, &loginResp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.accessToken = loginResp.AccessToken

	var csrfResp struct {
		Result string `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/security/csrf_token/", nil, &csrfResp); err != nil {
		return fmt.Errorf("fetch csrf token: %w", err)
	}
	c.csrfToken = csrfResp.Result

	return nil
}

// Health reports whether Superset is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// DatabaseID looks up a registered database by name.
func (c *Client) DatabaseID(ctx context.Context, name string) (int, error) {
	id, found, err := c.findByName(ctx, "/api/v1/database/", "database_name", name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("database %q not registered in superset", name)
	}
	return id, nil
}

// EnsureDataset finds or creates a virtual (SQL) dataset and returns its id.
func (c *Client) EnsureDataset(ctx context.Context, databaseID int, tableName, sql, description string) (int, error) {
	id, found, err := c.findByName(ctx, "/api/v1/dataset/", "table_name", tableName)
	if err != nil {
		return 0, err
	}
	if found {
		slog.Debug("dataset exists", "table_name", tableName, "id", id)
		return id, nil
	}

	payload := map[string]interface{}{
		"database":    databaseID,
		"table_name":  tableName,
		"sql":         sql,
		"description": description,
		"schema":      nil,
	}

	id, err = c.create(ctx, "/api/v1/dataset/", payload)
	if err != nil {
		return 0, fmt.Errorf("create dataset %q: %w", tableName, err)
	}
	slog.Info("created dataset", "table_name", tableName, "id", id)
	return id, nil
}

// EnsureChart finds or creates a chart (slice) and returns its id.
func (c *Client) EnsureChart(ctx context.Context, name, vizType string, datasetID int, params map[string]interface{}) (int, error) {
	id, found, err := c.findByName(ctx, "/api/v1/chart/", "slice_name", name)
	if err != nil {
		return 0, err
	}
	if found {
		slog.Debug("chart exists", "name", name, "id", id)
		return id, nil
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("marshal chart params: %w", err)
	}

	payload := map[string]interface{}{
		"slice_name":      name,
		"viz_type":        vizType,
		"datasource_id":   datasetID,
		"datasource_type": "table",
		"params":          string(paramsJSON),
	}

	id, err = c.create(ctx, "/api/v1/chart/", payload)
	if err != nil {
		return 0, fmt.Errorf("create chart %q: %w", name, err)
	}
	slog.Info("created chart", "name", name, "id", id)
	return id, nil
}

// EnsureDashboard finds or creates a published dashboard holding the given
// charts in a two-column grid.
func (c *Client) EnsureDashboard(ctx context.Context, title, slug string, chartIDs []int) (int, error) {
	id, found, err := c.findByName(ctx, "/api/v1/dashboard/", "dashboard_title", title)
	if err != nil {
		return 0, err
	}
	if found {
		slog.Debug("dashboard exists", "title", title, "id", id)
		return id, nil
	}

	positionJSON, err := json.Marshal(buildLayout(chartIDs))
	if err != nil {
		return 0, fmt.Errorf("marshal dashboard layout: %w", err)
	}

	payload := map[string]interface{}{
		"dashboard_title": title,
		"slug":            slug,
		"published":       true,
		"position_json":   string(positionJSON),
	}

	id, err = c.create(ctx, "/api/v1/dashboard/", payload)
	if err != nil {
		return 0, fmt.Errorf("create dashboard %q: %w", title, err)
	}
	slog.Info("created dashboard", "title", title, "id", id)
	return id, nil
}

// findByName queries a Superset collection filtered on an exact column match
// and returns the first result's id.
func (c *Client) findByName(ctx context.Context, path, column, value string) (int, bool, error) {
	filter := map[string]interface{}{
		"filters": []map[string]interface{}{
			{"col": column, "opr": "eq", "value": value},
		},
	}
	q, err := json.Marshal(filter)
	if err != nil {
		return 0, false, err
	}

	var listResp struct {
		Result []struct {
			ID int `json:"id"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, path+"?q="+url.QueryEscape(string(q)), nil, &listResp); err != nil {
		return 0, false, err
	}

	if len(listResp.Result) == 0 {
		return 0, false, nil
	}
	return listResp.Result[0].ID, true, nil
}

func (c *Client) create(ctx context.Context, path string, payload map[string]interface{}) (int, error) {
	var createResp struct {
		ID     int `json:"id"`
		Result struct {
			ID int `json:"id"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, path, payload, &createResp); err != nil {
		return 0, err
	}

	if createResp.ID != 0 {
		return createResp.ID, nil
	}
	return createResp.Result.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	if c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Superset answers 422 for duplicate creates; treat it like success so
	// re-runs stay idempotent.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnprocessableEntity {
		return fmt.Errorf("superset error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// buildLayout arranges charts in a two-column Superset v2 grid.
func buildLayout(chartIDs []int) map[string]interface{} {
	layout := map[string]interface{}{
		"ROOT_ID": map[string]interface{}{
			"type": "ROOT", "id": "ROOT_ID", "children": []string{"GRID_ID"},
		},
		"HEADER_ID": map[string]interface{}{
			"type": "HEADER", "id": "HEADER_ID",
			"meta": map[string]interface{}{"text": "Dynamo AI"},
		},
		"DASHBOARD_VERSION_KEY": "v2",
	}

	grid := map[string]interface{}{
		"type": "GRID", "id": "GRID_ID",
		"children": []string{}, "parents": []string{"ROOT_ID"},
	}
	gridChildren := []string{}

	var rowID string
	var rowChildren []string
	flushRow := func() {
		if rowID == "" {
			return
		}
		layout[rowID] = map[string]interface{}{
			"type": "ROW", "id": rowID,
			"children": rowChildren,
			"parents":  []string{"ROOT_ID", "GRID_ID"},
			"meta":     map[string]interface{}{"background": "BACKGROUND_TRANSPARENT"},
		}
		gridChildren = append(gridChildren, rowID)
		rowID = ""
		rowChildren = nil
	}

	for i, chartID := range chartIDs {
		if i%2 == 0 {
			flushRow()
			rowID = fmt.Sprintf("ROW-%d", i/2)
		}
		componentID := fmt.Sprintf("CHART-%d", chartID)
		layout[componentID] = map[string]interface{}{
			"type": "CHART", "id": componentID,
			"children": []string{},
			"parents":  []string{"ROOT_ID", "GRID_ID", rowID},
			"meta": map[string]interface{}{
				"chartId": chartID, "width": 6, "height": 50, "sliceName": "",
			},
		}
		rowChildren = append(rowChildren, componentID)
	}
	flushRow()

	grid["children"] = gridChildren
	layout["GRID_ID"] = grid

	return layout
}

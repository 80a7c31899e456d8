package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// activityView mirrors the server's activity JSON.
type activityView struct {
	ID        uint64      `json:"id"`
	Kind      string      `json:"kind"`
	Target    string      `json:"target"`
	Variant   string      `json:"variant"`
	Steps     *stepsView  `json:"steps"`
	Status    string      `json:"status"`
	Milestone string      `json:"milestone"`
	Error     string      `json:"error"`
	Created   time.Time   `json:"created"`
	Events    []eventView `json:"events"`
}

type stepsView struct {
	Bearing int `json:"bearing"`
	Dec     int `json:"dec"`
}

type eventView struct {
	Seq       int       `json:"seq"`
	Status    string    `json:"status"`
	Milestone string    `json:"milestone"`
	Note      string    `json:"note"`
	Error     string    `json:"error"`
	Time      time.Time `json:"time"`
}

type commandResult struct {
	Activity *activityView `json:"activity"`
	Resumed  *activityView `json:"resumed"`
}

type targetView struct {
	Tracking bool   `json:"tracking"`
	Target   string `json:"target"`
	Variant  string `json:"variant"`
}

type historyRecord struct {
	Session    string    `json:"session"`
	ActivityID uint64    `json:"activity_id"`
	Seq        int       `json:"seq"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	Milestone  string    `json:"milestone"`
	Note       string    `json:"note"`
	Error      string    `json:"error"`
	Time       time.Time `json:"time"`
}

// apiError is a non-2xx reply from the server.
type apiError struct {
	StatusCode int
	Kind       string        `json:"kind"`
	Message    string        `json:"error"`
	Activity   *activityView `json:"activity"`
}

func (e *apiError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// client talks to the skytrack REST API.
type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newClient(baseURL, token string, timeout time.Duration) *client {
	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/") + "/api/v1",
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do sends a request and decodes a 2xx JSON body into out.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) command(ctx context.Context, path string, query url.Values) (*commandResult, error) {
	var res commandResult
	if err := c.do(ctx, http.MethodPost, path, query, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *client) currentTarget(ctx context.Context) (*targetView, error) {
	var t targetView
	if err := c.do(ctx, http.MethodGet, "/telescope/target", nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *client) activities(ctx context.Context, limit int) ([]activityView, error) {
	var acts []activityView
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	if err := c.do(ctx, http.MethodGet, "/activities", q, nil, &acts); err != nil {
		return nil, err
	}
	return acts, nil
}

func (c *client) activity(ctx context.Context, id uint64) (*activityView, error) {
	var act activityView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/activities/%d", id), nil, nil, &act); err != nil {
		return nil, err
	}
	return &act, nil
}

func (c *client) history(ctx context.Context, limit int) ([]historyRecord, error) {
	var records []historyRecord
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	if err := c.do(ctx, http.MethodGet, "/history", q, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *client) login(ctx context.Context, username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/token", nil, strings.NewReader(string(payload)), &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"medley/internal/identity"
	"medley/internal/jobs"
	"medley/internal/resolver"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	base    string
	token   string
	subject string
	http    *http.Client
}

func newAPIClient(base, token, subject string) *apiClient {
	return &apiClient{
		base:    strings.TrimRight(base, "/"),
		token:   token,
		subject: subject,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// jobView mirrors the daemon's job response with optional inlined content.
type jobView struct {
	jobs.Record
	Content string `json:"content,omitempty"`
}

type healthView struct {
	Running bool                      `json:"running"`
	Healthy bool                      `json:"healthy"`
	Steps   map[string]stepHealthView `json:"steps"`
}

type stepHealthView struct {
	Ready  bool   `json:"ready"`
	Detail string `json:"detail"`
}

func (c *apiClient) SubmitJob(filename string, media []byte, contentType string) (*jobs.Record, error) {
	path := "/api/jobs?filename=" + url.QueryEscape(filename)
	var record jobs.Record
	if err := c.do(http.MethodPost, path, media, contentType, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *apiClient) GetJob(jobID string) (*jobView, error) {
	var view jobView
	if err := c.do(http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, "", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) ListJobs() ([]jobs.Record, error) {
	var listing struct {
		Jobs []jobs.Record `json:"jobs"`
	}
	if err := c.do(http.MethodGet, "/api/jobs", nil, "", &listing); err != nil {
		return nil, err
	}
	return listing.Jobs, nil
}

func (c *apiClient) Notify(n resolver.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, "/api/notifications", body, "application/json", nil)
}

func (c *apiClient) Health() (*healthView, error) {
	var health healthView
	if err := c.do(http.MethodGet, "/api/health", nil, "", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *apiClient) do(method, path string, body []byte, contentType string, out any) error {
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.subject != "" {
		req.Header.Set(identity.SubjectHeader, c.subject)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func wrapDialError(err error, base string) error {
	if strings.Contains(err.Error(), syscall.ECONNREFUSED.Error()) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `medleyd`", base)
	}
	return fmt.Errorf("connect to daemon at %s: %w", base, err)
}

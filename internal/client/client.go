// Package client is the HTTP client the CLI uses against a running
// steward server. The CLI never touches the persisted files directly;
// the server stays their single writer.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/steward-sh/steward/internal/report"
	"github.com/steward-sh/steward/internal/rules"
	"github.com/steward-sh/steward/pkg/types"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Summary(ctx context.Context) (report.Summary, error) {
	var out report.Summary
	err := c.getJSON(ctx, "/api/v1/summary", &out)
	return out, err
}

func (c *Client) Rules(ctx context.Context) ([]rules.AutomationRule, error) {
	var out []rules.AutomationRule
	err := c.getJSON(ctx, "/api/v1/rules", &out)
	return out, err
}

func (c *Client) Proposals(ctx context.Context) ([]report.Proposal, error) {
	var out []report.Proposal
	err := c.getJSON(ctx, "/api/v1/proposals", &out)
	return out, err
}

func (c *Client) RecentDecisions(ctx context.Context, limit int) ([]types.DecisionRecord, error) {
	var out []types.DecisionRecord
	err := c.getJSON(ctx, fmt.Sprintf("/api/v1/decisions/recent?limit=%d", limit), &out)
	return out, err
}

// RuleAction invokes one lifecycle action: activate, pause, resume or
// revoke.
func (c *Client) RuleAction(ctx context.Context, id, action string) error {
	return c.post(ctx, fmt.Sprintf("/api/v1/rules/%s/%s", id, action))
}

// ResolveProposal approves or declines a pending proposal.
func (c *Client) ResolveProposal(ctx context.Context, id string, approve bool) error {
	action := "decline"
	if approve {
		action = "approve"
	}
	return c.post(ctx, fmt.Sprintf("/api/v1/proposals/%s/%s", id, action))
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("server: %s (%s)", body.Error, resp.Status)
	}
	return fmt.Errorf("server: %s", resp.Status)
}

// Package github issues GitHub Actions workflow-dispatch requests.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hookwatch/hookwatch/errors"
	"github.com/hookwatch/hookwatch/internal/httpclient"
)

// Dispatcher triggers workflow_dispatch events via the GitHub REST API.
type Dispatcher struct {
	client  *httpclient.SaferClient
	baseURL string
	token   string
}

// NewDispatcher creates a dispatcher.
// baseURL defaults to the public API when empty (override for GHES or tests).
func NewDispatcher(client *httpclient.SaferClient, baseURL, token string) *Dispatcher {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Dispatcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// DispatchRequest identifies the workflow to run and its inputs.
type DispatchRequest struct {
	Owner    string
	Repo     string
	Workflow string            // workflow file name or numeric id
	Ref      string            // defaults to "main"
	Inputs   map[string]string // forwarded as workflow inputs
}

// Dispatch issues the workflow_dispatch call.
// GitHub answers 204 No Content on success; any other status is an error.
// The returned status code is reported even on failure so callers can
// record it on the execution row.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (int, error) {
	if req.Owner == "" || req.Repo == "" || req.Workflow == "" {
		return 0, errors.NewInvalidRequestError("dispatch requires owner, repo, and workflow")
	}
	ref := req.Ref
	if ref == "" {
		ref = "main"
	}

	body := map[string]interface{}{"ref": ref}
	if len(req.Inputs) > 0 {
		body["inputs"] = req.Inputs
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal dispatch payload")
	}

	url := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches",
		d.baseURL, req.Owner, req.Repo, req.Workflow)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, errors.Wrap(err, "failed to build dispatch request")
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	httpReq.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return 0, errors.Wrap(err, "dispatch request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		// GitHub error bodies are small JSON documents; capture a bounded
		// slice for the execution record.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, errors.Newf("workflow dispatch returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return resp.StatusCode, nil
}

// Package client talks to the tracker HTTP API. Used by the simulator and
// the live map.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"transit-tracker/internal/catalog"
	"transit-tracker/internal/fleet"
	"transit-tracker/internal/ingest"
)

type Client struct {
	baseURL string
	hc      *http.Client
}

// New returns a client for the tracker at baseURL. A nil hc gets a 10s
// timeout and a tracing transport.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Code    int
	Kind    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("tracker: %d %s: %s", e.Code, e.Kind, e.Message)
	}
	return fmt.Sprintf("tracker: %d: %s", e.Code, e.Message)
}

func (c *Client) Routes(ctx context.Context) ([]catalog.Route, error) {
	var out []catalog.Route
	return out, c.getJSON(ctx, "/api/routes", &out)
}

func (c *Client) Stops(ctx context.Context, routeID string) ([]catalog.Stop, error) {
	var out []catalog.Stop
	return out, c.getJSON(ctx, "/api/routes/"+url.PathEscape(routeID)+"/stops", &out)
}

// Live fetches the fleet snapshot; limit <= 0 leaves the server default.
func (c *Client) Live(ctx context.Context, limit int) ([]fleet.VehicleState, error) {
	path := "/api/buses/live"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []fleet.VehicleState
	return out, c.getJSON(ctx, path, &out)
}

// Report posts one position report. A rejected report comes back as a
// *StatusError carrying the error kind.
func (c *Client) Report(ctx context.Context, r ingest.Report) (ingest.Outcome, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return ingest.Outcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/gps/update", bytes.NewReader(body))
	if err != nil {
		return ingest.Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return ingest.Outcome{}, err
	}
	defer resp.Body.Close()

	var out ingest.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ingest.Outcome{}, fmt.Errorf("decode report outcome: %w", err)
	}
	if resp.StatusCode/100 != 2 || !out.Accepted {
		return out, &StatusError{Code: resp.StatusCode, Kind: out.ErrorKind, Message: out.Error}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error     string `json:"error"`
		ErrorKind string `json:"errorKind"`
	}
	if json.Unmarshal(b, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(b))
	}
	return &StatusError{Code: resp.StatusCode, Kind: body.ErrorKind, Message: body.Error}
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openv2x/v2xtrust/internal/api"
)

// serverURL is the admin API base URL, shared by the client-side verbs.
var serverURL string

// adminClient is a thin HTTP client for the admin API.
type adminClient struct {
	base string
	http *http.Client
}

func newAdminClient(base string) *adminClient {
	return &adminClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// postJSON sends a JSON request and decodes the response into out.
func (c *adminClient) postJSON(path string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiErrorFrom(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// getJSON sends a GET request and decodes the JSON response into out.
func (c *adminClient) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiErrorFrom(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// getRaw sends a GET request and returns the raw response body.
func (c *adminClient) getRaw(path string) ([]byte, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, apiErrorFrom(resp)
	}
	return io.ReadAll(resp.Body)
}

// apiErrorFrom converts an error response body into a Go error.
func apiErrorFrom(resp *http.Response) error {
	var apiErr api.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}

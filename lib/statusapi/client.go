// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package statusapi

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/switchboard-dev/switchboard/lib/netutil"
)

// Client is a typed HTTP client for the daemon's status socket.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client that communicates with the daemon over
// the given Unix socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					return (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// HTTPClient returns the underlying HTTP client configured to dial
// the status socket.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Status returns daemon-level information.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	response, err := c.get(ctx, "/v1/status")
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var result StatusResponse
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &result, nil
}

// Sessions returns the live session list.
func (c *Client) Sessions(ctx context.Context) ([]SessionEntry, error) {
	response, err := c.get(ctx, "/v1/sessions")
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sessions: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var result []SessionEntry
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	return result, nil
}

// get makes a GET request to the daemon. The host in the URL is a
// placeholder; the transport dials the Unix socket regardless.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://switchboard"+path, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(request)
}

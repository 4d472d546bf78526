// Package api implements the client and wire types of the summarize
// server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jmorganca/headliner/envconfig"
)

type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{base: base, http: http}
}

// ClientFromEnvironment creates a client for the server at HEADLINER_HOST.
func ClientFromEnvironment() (*Client, error) {
	base, err := url.Parse("http://" + envconfig.Host)
	if err != nil {
		return nil, err
	}

	return NewClient(base, http.DefaultClient), nil
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var body io.Reader
	if reqData != nil {
		bts, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		body = bytes.NewReader(bts)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	bts, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode >= http.StatusBadRequest {
		apiError := StatusError{StatusCode: response.StatusCode, Status: response.Status}
		if err := json.Unmarshal(bts, &apiError); err != nil {
			apiError.ErrorMessage = string(bts)
		}
		return apiError
	}

	if respData != nil {
		if err := json.Unmarshal(bts, respData); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) Summarize(ctx context.Context, req *SummarizeRequest) (*SummarizeResponse, error) {
	var resp SummarizeResponse
	if err := c.do(ctx, http.MethodPost, "/api/summarize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	var resp InfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/info", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat checks that the server is up.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}

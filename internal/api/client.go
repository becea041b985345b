package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "CHUNKVAULT_HTTP_TIMEOUT"
	metadataPrefix     = "meta."
)

// Client is a simple HTTP client for the chunkvault API.
type Client struct {
	baseURL string
	http    *http.Client
	// stream carries uploads and downloads, bounded only by the context.
	stream *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
		stream:  &http.Client{},
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// GetInfo returns server settings.
func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/info", nil, &resp)
	return resp, err
}

// List returns every finalized blob in ns.
func (c *Client) List(ctx context.Context, ns Namespace) (ListResponse, error) {
	var resp ListResponse
	err := c.do(ctx, http.MethodGet, "/list", ns.query(), &resp)
	return resp, err
}

// Upload streams body to the server as one blob.
func (c *Client) Upload(ctx context.Context, ns Namespace, body io.Reader, req UploadRequest) (UploadResponse, error) {
	var resp UploadResponse

	query := ns.query()
	if name := strings.TrimSpace(req.Filename); name != "" {
		query.Set("filename", name)
	}
	for k, v := range req.Metadata {
		query.Set(metadataPrefix+k, v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload", query), body)
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	httpResp, err := c.stream.Do(httpReq)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Download streams blob fileID into w. format "wav" requests a WAV framed
// stream when the server supports it.
func (c *Client) Download(ctx context.Context, ns Namespace, fileID, format string, w io.Writer) (DownloadResult, error) {
	var result DownloadResult

	query := ns.query()
	query.Set("file_id", fileID)
	if format = strings.TrimSpace(format); format != "" {
		query.Set("format", format)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/download", query), nil)
	if err != nil {
		return result, err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return result, decodeError(resp)
	}

	result.ContentType = resp.Header.Get("Content-Type")
	result.Size = resp.ContentLength
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		result.Filename = params["filename"]
	}

	result.Written, err = io.Copy(w, resp.Body)
	if err != nil {
		return result, err
	}
	if result.Size >= 0 && result.Written != result.Size {
		return result, fmt.Errorf("download truncated: got %d of %d bytes", result.Written, result.Size)
	}
	return result, nil
}

func (ns Namespace) query() url.Values {
	query := url.Values{}
	if db := strings.TrimSpace(ns.DB); db != "" {
		query.Set("db", db)
	}
	if collection := strings.TrimSpace(ns.Collection); collection != "" {
		query.Set("collection", collection)
	}
	return query
}

func (c *Client) endpoint(path string, query url.Values) string {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}

package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NodeInfo identifies a worker node. Two fragments live on the same source
// node when their NodeInfo.ID values are equal.
type NodeInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

func (n NodeInfo) String() string {
	return fmt.Sprintf("%s(%s)", n.ID, n.Addr)
}

// RegisterRequest is the body of POST /register on the coordinator.
type RegisterRequest struct {
	Node NodeInfo `json:"node"`
}

// HTTPError is returned when a peer answers with a non-2xx status.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %s: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("http %s: %d: %s", e.URL, e.StatusCode, e.Body)
}

// httpClient is shared by every helper. Per-call deadlines come from the
// caller's context; the client timeout is the upper bound.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// PostJSON sends body as JSON to url and decodes the response into out.
//
// Parameters:
//   - ctx: Cancels the request
//   - url: Full URL including scheme
//   - body: Value marshalled as the request body
//   - out: Destination for the response, or nil to discard it
//
// Returns:
//   - *HTTPError when the peer answers with a non-2xx status
//   - Transport or decoding errors otherwise
//
// Example:
//
//	err := cluster.PostJSON(ctx, coord+"/register", RegisterRequest{Node: self}, nil)
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(url, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON issues a GET to url and decodes the JSON response into out.
// A non-2xx status is returned as *HTTPError.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(url, resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetBytes reads the whole response body of a GET request.
func GetBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(url, resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// PutBytes uploads body with a PUT request.
func PutBytes(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(url, resp)
}

// checkStatus turns a non-2xx response into *HTTPError carrying at most the
// first 512 bytes of the body.
func checkStatus(url string, resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPError{URL: url, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
}

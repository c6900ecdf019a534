package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNodeInfoJSON checks the wire names used between coordinator and nodes.
func TestNodeInfoJSON(t *testing.T) {
	data, err := json.Marshal(RegisterRequest{Node: NodeInfo{ID: "node-1", Addr: "http://localhost:8081"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"node":{"id":"node-1","addr":"http://localhost:8081"}}`, string(data))
	assert.Equal(t, "node-1(http://localhost:8081)", NodeInfo{ID: "node-1", Addr: "http://localhost:8081"}.String())
}

// TestPostJSON checks request encoding, response decoding and status
// handling of PostJSON.
func TestPostJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		wantErr    bool
		wantStatus int
	}{
		{name: "success with body", status: http.StatusOK, response: `{"ok":true}`},
		{name: "no content", status: http.StatusNoContent},
		{name: "server error", status: http.StatusInternalServerError, response: "boom", wantErr: true, wantStatus: 500},
		{name: "conflict", status: http.StatusConflict, response: "missing", wantErr: true, wantStatus: 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var got map[string]string
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, "v", got["k"])
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.response)
			}))
			defer srv.Close()

			var out map[string]bool
			var outPtr any
			if tt.response != "" && !tt.wantErr {
				outPtr = &out
			}
			err := PostJSON(context.Background(), srv.URL, map[string]string{"k": "v"}, outPtr)
			if !tt.wantErr {
				require.NoError(t, err)
				if outPtr != nil {
					assert.True(t, out["ok"])
				}
				return
			}
			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr), "expected *HTTPError, got %v", err)
			assert.Equal(t, tt.wantStatus, httpErr.StatusCode)
			assert.Equal(t, tt.response, httpErr.Body)
		})
	}
}

// TestGetJSON verifies decoding of a JSON response and HTTPError on failure.
func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(NodeInfo{ID: "node-2", Addr: "x"})
	}))
	defer srv.Close()

	var n NodeInfo
	require.NoError(t, GetJSON(context.Background(), srv.URL+"/node", &n))
	assert.Equal(t, "node-2", n.ID)

	err := GetJSON(context.Background(), srv.URL+"/missing", &n)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

// TestGetAndPutBytes round-trips a raw body through PUT and GET.
func TestGetAndPutBytes(t *testing.T) {
	var stored []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			stored, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			_, _ = w.Write(stored)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, PutBytes(ctx, srv.URL+"/blob", []byte("payload")))
	got, err := GetBytes(ctx, srv.URL+"/blob")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

// TestRequestsHonorContext verifies that a cancelled context aborts a call.
func TestRequestsHonorContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GetBytes(ctx, "http://127.0.0.1:1/never")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shuffleread/internal/cluster"
	"github.com/dreamware/shuffleread/internal/coordinator"
	"github.com/dreamware/shuffleread/internal/shuffle"
)

// TestGetenv tests the getenv utility function
func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      string
		expected string
	}{
		{name: "environment variable set", key: "TEST_ENV_VAR", value: "test_value", def: "default", expected: "test_value"},
		{name: "environment variable not set", key: "UNSET_ENV_VAR", def: "default_value", expected: "default_value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
				defer os.Unsetenv(tt.key)
			}
			if got := getenv(tt.key, tt.def); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

// TestHandleRegister tests node registration validation and updates
func TestHandleRegister(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid registration", body: `{"node":{"id":"n1","addr":"http://localhost:8081"}}`, wantStatus: http.StatusNoContent},
		{name: "missing addr", body: `{"node":{"id":"n1"}}`, wantStatus: http.StatusBadRequest},
		{name: "missing id", body: `{"node":{"addr":"http://localhost:8081"}}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer()
			req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			srv.routes().ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

// TestRegisterUpdatesExistingNode verifies re-registration replaces the
// address without duplicating the node.
func TestRegisterUpdatesExistingNode(t *testing.T) {
	srv := newServer()
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	client := coordinator.NewClient(ts.URL)
	ctx := context.Background()
	require.NoError(t, client.RegisterNode(ctx, cluster.NodeInfo{ID: "n1", Addr: "http://old"}))
	require.NoError(t, client.RegisterNode(ctx, cluster.NodeInfo{ID: "n2", Addr: "http://other"}))
	require.NoError(t, client.RegisterNode(ctx, cluster.NodeInfo{ID: "n1", Addr: "http://new"}))

	var resp struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}
	require.NoError(t, cluster.GetJSON(ctx, ts.URL+"/nodes", &resp))
	assert.Equal(t, []cluster.NodeInfo{
		{ID: "n1", Addr: "http://new"},
		{ID: "n2", Addr: "http://other"},
	}, resp.Nodes)
}

// TestShuffleLifecycle drives register, report, resolve, node loss and
// delete through the HTTP API.
func TestShuffleLifecycle(t *testing.T) {
	srv := newServer()
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	client := coordinator.NewClient(ts.URL)
	ctx := context.Background()
	a := cluster.NodeInfo{ID: "a", Addr: "http://a"}
	b := cluster.NodeInfo{ID: "b", Addr: "http://b"}

	_, err := client.ResolveLocations(ctx, 3, 0)
	assert.ErrorIs(t, err, shuffle.ErrUnknownShuffle)

	require.NoError(t, client.RegisterShuffle(ctx, coordinator.RegisterShuffleRequest{ShuffleID: 3, Producers: 2, Partitions: 2}))
	require.NoError(t, client.ReportMapOutput(ctx, 3, coordinator.MapStatus{ProducerID: 0, Node: a, Sizes: []int64{5, 6}}))

	_, err = client.ResolveLocations(ctx, 3, 0)
	assert.ErrorIs(t, err, shuffle.ErrMissingOutput)

	require.NoError(t, client.ReportMapOutput(ctx, 3, coordinator.MapStatus{ProducerID: 1, Node: b, Sizes: []int64{7, 0}}))

	table, err := client.ResolveLocations(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, shuffle.LocationTable{{Node: a, Size: 6}, {Node: b, Size: 0}}, table)

	// Losing a node makes its outputs unavailable again.
	srv.handleNodeLost("b")
	_, err = client.ResolveLocations(ctx, 3, 1)
	assert.ErrorIs(t, err, shuffle.ErrMissingOutput)

	var listing struct {
		Shuffles []coordinator.ShuffleSummary `json:"shuffles"`
	}
	require.NoError(t, cluster.GetJSON(ctx, ts.URL+"/shuffles", &listing))
	assert.Equal(t, []coordinator.ShuffleSummary{{ShuffleID: 3, Producers: 2, Partitions: 2, Available: 1}}, listing.Shuffles)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/shuffles/3", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestShuffleEndpointValidation covers malformed shuffle requests.
func TestShuffleEndpointValidation(t *testing.T) {
	srv := newServer()
	require.NoError(t, srv.tracker.RegisterShuffle(1, 1, 1))
	handler := srv.routes()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "bad shape", method: http.MethodPost, path: "/shuffles", body: `{"shuffle_id":2,"producers":1,"partitions":0}`, wantStatus: http.StatusBadRequest},
		{name: "bad shuffle json", method: http.MethodPost, path: "/shuffles", body: `nope`, wantStatus: http.StatusBadRequest},
		{name: "non numeric id", method: http.MethodGet, path: "/shuffles/x/locations/0", wantStatus: http.StatusBadRequest},
		{name: "non numeric partition", method: http.MethodGet, path: "/shuffles/1/locations/y", wantStatus: http.StatusBadRequest},
		{name: "partition out of range", method: http.MethodGet, path: "/shuffles/1/locations/5", wantStatus: http.StatusBadRequest},
		{name: "output for unknown shuffle", method: http.MethodPost, path: "/shuffles/9/outputs", body: `{"producer_id":0,"node":{"id":"a","addr":"http://a"},"sizes":[1]}`, wantStatus: http.StatusNotFound},
		{name: "output with wrong sizes", method: http.MethodPost, path: "/shuffles/1/outputs", body: `{"producer_id":0,"node":{"id":"a","addr":"http://a"},"sizes":[1,2]}`, wantStatus: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodPut, path: "/shuffles", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

// TestHealthEndpoints checks the coordinator and node health views.
func TestHealthEndpoints(t *testing.T) {
	srv := newServer()
	handler := srv.routes()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nodes/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var health map[string]*coordinator.NodeHealth
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Empty(t, health)
}

// TestConcurrentNodeOperations tests concurrent registrations and listings
func TestConcurrentNodeOperations(t *testing.T) {
	srv := newServer()
	handler := srv.routes()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(cluster.RegisterRequest{Node: cluster.NodeInfo{ID: string(rune('a' + i)), Addr: "http://x"}})
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(body)))
		}(i)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nodes", nil))
		}()
	}
	wg.Wait()

	if got := len(srv.listNodes()); got != 20 {
		t.Errorf("Expected 20 nodes, got %d", got)
	}
}

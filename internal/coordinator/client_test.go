package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shuffleread/internal/cluster"
	"github.com/dreamware/shuffleread/internal/shuffle"
)

// TestClientResolveLocations verifies the remote resolver decodes tables
// and maps 404 and 409 back to the resolution sentinels.
func TestClientResolveLocations(t *testing.T) {
	want := shuffle.LocationTable{{Node: nodeA, Size: 12}, {Node: nodeB, Size: 0}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shuffles/1/locations/0":
			_ = json.NewEncoder(w).Encode(LocationsResponse{ShuffleID: 1, PartitionID: 0, Locations: want})
		case "/shuffles/2/locations/0":
			http.Error(w, "unknown shuffle", http.StatusNotFound)
		case "/shuffles/3/locations/0":
			http.Error(w, "missing map output", http.StatusConflict)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/")
	ctx := context.Background()

	got, err := client.ResolveLocations(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = client.ResolveLocations(ctx, 2, 0)
	assert.ErrorIs(t, err, shuffle.ErrUnknownShuffle)

	_, err = client.ResolveLocations(ctx, 3, 0)
	assert.ErrorIs(t, err, shuffle.ErrMissingOutput)

	_, err = client.ResolveLocations(ctx, 4, 0)
	var httpErr *cluster.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

// TestClientRegistrationCalls verifies the bodies sent for node, shuffle
// and map output registration.
func TestClientRegistrationCalls(t *testing.T) {
	var (
		registered cluster.RegisterRequest
		shape      RegisterShuffleRequest
		status     MapStatus
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&registered)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /shuffles", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&shape)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /shuffles/{id}/outputs", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "4" {
			http.Error(w, "unknown shuffle", http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&status)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	require.NoError(t, client.RegisterNode(ctx, nodeA))
	assert.Equal(t, nodeA, registered.Node)

	require.NoError(t, client.RegisterShuffle(ctx, RegisterShuffleRequest{ShuffleID: 4, Producers: 2, Partitions: 3}))
	assert.Equal(t, RegisterShuffleRequest{ShuffleID: 4, Producers: 2, Partitions: 3}, shape)

	sent := MapStatus{ProducerID: 1, Node: nodeB, Sizes: []int64{1, 2, 3}}
	require.NoError(t, client.ReportMapOutput(ctx, 4, sent))
	assert.Equal(t, sent, status)

	err := client.ReportMapOutput(ctx, 5, sent)
	assert.ErrorIs(t, err, shuffle.ErrUnknownShuffle)
}

// TestClientSatisfiesResolver is a compile-time check of both resolvers.
func TestClientSatisfiesResolver(t *testing.T) {
	var _ shuffle.Resolver = NewClient("http://localhost")
	var _ shuffle.Resolver = NewMapOutputTracker()
}

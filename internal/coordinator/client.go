package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dreamware/shuffleread/internal/cluster"
	"github.com/dreamware/shuffleread/internal/shuffle"
)

// RegisterShuffleRequest is the body of POST /shuffles.
type RegisterShuffleRequest struct {
	ShuffleID  int `json:"shuffle_id"`
	Producers  int `json:"producers"`
	Partitions int `json:"partitions"`
}

// LocationsResponse is the body of GET /shuffles/{id}/locations/{partition}.
type LocationsResponse struct {
	ShuffleID   int                   `json:"shuffle_id"`
	PartitionID int                   `json:"partition_id"`
	Locations   shuffle.LocationTable `json:"locations"`
}

// Client talks to a coordinator over HTTP. Nodes use it to join the cluster,
// to report finished map output and as the shuffle.Resolver behind reads.
type Client struct {
	BaseURL string
}

// NewClient returns a client for the coordinator at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/")}
}

// RegisterNode announces node to the coordinator.
func (c *Client) RegisterNode(ctx context.Context, node cluster.NodeInfo) error {
	return cluster.PostJSON(ctx, c.BaseURL+"/register", cluster.RegisterRequest{Node: node}, nil)
}

// RegisterShuffle declares a shuffle's shape.
func (c *Client) RegisterShuffle(ctx context.Context, req RegisterShuffleRequest) error {
	return mapStatusErr(cluster.PostJSON(ctx, c.BaseURL+"/shuffles", req, nil))
}

// ReportMapOutput records where a producer's output lives.
func (c *Client) ReportMapOutput(ctx context.Context, shuffleID int, status MapStatus) error {
	url := fmt.Sprintf("%s/shuffles/%d/outputs", c.BaseURL, shuffleID)
	return mapStatusErr(cluster.PostJSON(ctx, url, status, nil))
}

// ResolveLocations implements shuffle.Resolver against the coordinator.
func (c *Client) ResolveLocations(ctx context.Context, shuffleID, partitionID int) (shuffle.LocationTable, error) {
	url := fmt.Sprintf("%s/shuffles/%d/locations/%d", c.BaseURL, shuffleID, partitionID)
	var resp LocationsResponse
	if err := cluster.GetJSON(ctx, url, &resp); err != nil {
		return nil, mapStatusErr(err)
	}
	return resp.Locations, nil
}

// mapStatusErr turns the coordinator's 404 and 409 answers back into the
// resolution sentinels so callers can match them with errors.Is.
func mapStatusErr(err error) error {
	var httpErr *cluster.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	switch httpErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", shuffle.ErrUnknownShuffle, err)
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", shuffle.ErrMissingOutput, err)
	}
	return err
}

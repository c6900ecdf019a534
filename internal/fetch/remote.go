package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dreamware/shuffleread/internal/cluster"
	"github.com/dreamware/shuffleread/internal/shuffle"
	"github.com/dreamware/shuffleread/internal/storage"
)

// HTTPClient fetches fragments from a node's /fragments endpoint.
type HTTPClient struct{}

func (HTTPClient) FetchFragment(ctx context.Context, node cluster.NodeInfo, id shuffle.FragmentID) ([]byte, error) {
	data, err := cluster.GetBytes(ctx, FragmentURL(node.Addr, id))
	var httpErr *cluster.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %v", storage.ErrFragmentNotFound, err)
	}
	return data, err
}

// FragmentURL is where addr serves fragment id.
func FragmentURL(addr string, id shuffle.FragmentID) string {
	return fmt.Sprintf("%s/fragments/%d/%d/%d", strings.TrimRight(addr, "/"), id.ShuffleID, id.ProducerID, id.PartitionID)
}

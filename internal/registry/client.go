package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/transport"
)

// Client discovers services in a Backend and opens handles on them.
type Client struct {
	backend Backend
	opts    []transport.ProxyOption
}

// NewClient returns a client over b. opts configure every handle it opens.
func NewClient(b Backend, opts ...transport.ProxyOption) *Client {
	return &Client{backend: b, opts: opts}
}

// Discover returns every service whose name starts with prefix. An empty
// prefix matches all.
func (c *Client) Discover(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := c.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDiscoveryFailed, err)
	}
	return entries, nil
}

type ResolveOptions struct {
	// URI selects the service with exactly this address. Prefix is ignored.
	URI    string
	Prefix string
	// FirstMatch picks the first discovered entry instead of the most
	// recent one.
	FirstMatch bool
}

// Resolution is a chosen service with an open handle. The caller closes
// Handle.
type Resolution struct {
	Entry
	Handle *transport.Proxy
}

// Resolve picks one service and dials it. Only the chosen service gets a
// handle.
func (c *Client) Resolve(ctx context.Context, opts ResolveOptions) (*Resolution, error) {
	prefix := opts.Prefix
	if opts.URI != "" {
		prefix = ""
	}
	entries, err := c.Discover(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %q", models.ErrNoServerFound, prefix)
	}

	var chosen Entry
	switch {
	case opts.URI != "":
		i := indexOfAddress(entries, opts.URI)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, opts.URI)
		}
		chosen = entries[i]
	case opts.FirstMatch:
		chosen = entries[0]
	default:
		chosen = MostRecent(entries)
	}

	handle, err := transport.Dial(chosen.Address, c.opts...)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("[ns] resolved %s -> %s", chosen.Name, chosen.Address)
	return &Resolution{Entry: chosen, Handle: handle}, nil
}

func indexOfAddress(entries []Entry, address string) int {
	for i, e := range entries {
		if e.Address == address {
			return i
		}
	}
	return -1
}

// MostRecent returns the entry with the largest name timestamp, the first
// one on ties. entries must not be empty.
func MostRecent(entries []Entry) Entry {
	best := 0
	bestTS := Timestamp(entries[0].Name)
	for i := 1; i < len(entries); i++ {
		if ts := Timestamp(entries[i].Name); ts > bestTS {
			best, bestTS = i, ts
		}
	}
	return entries[best]
}

// Timestamp parses the last dotted segment of name as a number, 0 when it
// is not numeric.
func Timestamp(name string) float64 {
	seg := name[strings.LastIndex(name, ".")+1:]
	ts, err := strconv.ParseFloat(seg, 64)
	if err != nil {
		return 0
	}
	return ts
}

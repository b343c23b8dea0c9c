package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Kind is the closed set of backend variants a run can probe.
type Kind int

const (
	DirectFetch Kind = iota + 1
	ComparisonFetch
	DirectDiscovery
	IndexerDiscovery
)

const (
	defaultComparisonQuery = "depthType=shallow&format=car"
	findProvsQuery         = "num-providers=20"
	indexerQuery           = "cascade=ipfs-dht"
)

func (k Kind) String() string {
	switch k {
	case DirectFetch:
		return "direct_fetch"
	case ComparisonFetch:
		return "comparison_fetch"
	case DirectDiscovery:
		return "direct_discovery"
	case IndexerDiscovery:
		return "indexer_discovery"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps the textual form produced by String back to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{DirectFetch, ComparisonFetch, DirectDiscovery, IndexerDiscovery} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown backend kind %q", s)
}

// Discovery reports whether the variant resolves providers instead of fetching content.
func (k Kind) Discovery() bool {
	return k == DirectDiscovery || k == IndexerDiscovery
}

// Backend is one configured probe target.
type Backend struct {
	Kind    Kind
	Name    string
	Label   string
	BaseURL string
	Query   string
}

// Enabled reports whether the backend participates in the run.
func (b Backend) Enabled() bool {
	return strings.TrimSpace(b.BaseURL) != ""
}

// RootCID returns the identifier up to the first "/".
func RootCID(identifier string) string {
	if i := strings.IndexByte(identifier, '/'); i >= 0 {
		return identifier[:i]
	}
	return identifier
}

// newRequest builds the single request a backend issues for one identifier.
func (b Backend) newRequest(ctx context.Context, identifier string, rangeSize int64) (*http.Request, error) {
	base := strings.TrimRight(b.BaseURL, "/")
	var (
		method = http.MethodGet
		target string
	)
	switch b.Kind {
	case DirectFetch:
		target = base + "/ipfs/" + identifier
	case ComparisonFetch:
		query := b.Query
		if query == "" {
			query = defaultComparisonQuery
		}
		target = base + "/ipfs/" + identifier + "?" + query
	case DirectDiscovery:
		method = http.MethodPost
		target = base + "/api/v0/dht/findprovs/" + url.PathEscape(RootCID(identifier)) + "?" + findProvsQuery
	case IndexerDiscovery:
		mh, err := MultihashB58(RootCID(identifier))
		if err != nil {
			return nil, err
		}
		target = base + "/multihash/" + mh + "?" + indexerQuery
	default:
		return nil, fmt.Errorf("unsupported backend kind %s", b.Kind)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", b.Kind, err)
	}
	req.Header.Set("User-Agent", userAgent)
	switch b.Kind {
	case DirectFetch, ComparisonFetch:
		if rangeSize > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", rangeSize-1))
		}
	case IndexerDiscovery:
		req.Header.Set("Accept", "application/x-ndjson")
	}
	return req, nil
}

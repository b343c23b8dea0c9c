package runtime

import (
	"github.com/pingsantohq/cidbench/internal/config"
	"github.com/pingsantohq/cidbench/internal/discrepancy"
	"github.com/pingsantohq/cidbench/internal/probe"
	"github.com/pingsantohq/cidbench/pkg/types"
)

// Comparison pairs the direct backend of a mode with its counterpart and the
// rule that turns an asymmetric outcome into evidence.
type Comparison struct {
	Mode        string
	Primary     probe.Backend
	Counterpart probe.Backend
	Trigger     discrepancy.Trigger
	Header      string
}

// Backends returns both sides of the comparison, primary first.
func (c Comparison) Backends() []probe.Backend {
	return []probe.Backend{c.Primary, c.Counterpart}
}

// Deltas reports whether counterpart-minus-direct timing streams are recorded.
func (c Comparison) Deltas() bool {
	return c.Mode == config.ModeFetch && c.Primary.Enabled() && c.Counterpart.Enabled()
}

// BackendInfo returns the per-backend enabled markers stored in the artifact.
func (c Comparison) BackendInfo() []types.BackendInfo {
	out := make([]types.BackendInfo, 0, 2)
	for _, b := range c.Backends() {
		out = append(out, types.BackendInfo{
			Kind:    b.Kind.String(),
			Name:    b.Name,
			Label:   b.Label,
			Enabled: b.Enabled(),
		})
	}
	return out
}

// ComparisonFor derives the comparison for the configured mode.
func ComparisonFor(cfg config.Config) Comparison {
	b := cfg.Backends
	if cfg.Run.Mode == config.ModeFindProvs {
		return Comparison{
			Mode:        config.ModeFindProvs,
			Primary:     backendFrom(probe.DirectDiscovery, b.DirectDiscovery),
			Counterpart: backendFrom(probe.IndexerDiscovery, b.IndexerDiscovery),
			Trigger:     discrepancy.ProviderTrigger,
			Header:      discrepancy.HeaderProviders,
		}
	}
	return Comparison{
		Mode:        config.ModeFetch,
		Primary:     backendFrom(probe.DirectFetch, b.DirectFetch),
		Counterpart: backendFrom(probe.ComparisonFetch, b.ComparisonFetch),
		Trigger:     discrepancy.FetchTrigger,
		Header:      discrepancy.HeaderFetch,
	}
}

func backendFrom(kind probe.Kind, bc config.BackendConfig) probe.Backend {
	return probe.Backend{
		Kind:    kind,
		Name:    bc.Name,
		Label:   bc.Label,
		BaseURL: bc.URL,
		Query:   bc.Query,
	}
}

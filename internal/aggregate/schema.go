package aggregate

import (
	"strconv"
	"strings"

	"github.com/pingsantohq/cidbench/pkg/types"
)

var (
	fetchHeader = []string{
		"Service",
		"Latency Avg (ms)",
		"Latency Min (ms)",
		"Latency Med (ms)",
		"Latency Max (ms)",
		"Latency P(90) (ms)",
		"Latency P(95) (ms)",
		"Bandwidth (MB/s) Avg",
		"Bandwidth (MB/s) Min",
		"Bandwidth (MB/s) Med",
		"Bandwidth (MB/s) Max",
		"Bandwidth (MB/s) P(90)",
		"Bandwidth (MB/s) P(95)",
		"Success Rate",
	}

	findProvsHeader = []string{
		"Service",
		"Providers Found Avg",
		"Providers Found Min",
		"Providers Found Med",
		"Providers Found Max",
		"Providers Found P(90)",
		"Providers Found P(95)",
		"Success Rate",
	}

	trendKeys = []string{"avg", "min", "med", "max", "p(90)", "p(95)"}
)

// schema projects one backend of one Run Summary into a CSV row.
type schema struct {
	header []string
	// trends lists the stream prefixes whose statistics fill the row, in order.
	trends []string
}

var (
	// Latency columns carry time-to-first-byte statistics.
	fetchSchema     = schema{header: fetchHeader, trends: []string{"ttfb_", "megabytes_per_second_"}}
	findProvsSchema = schema{header: findProvsHeader, trends: []string{"provider_rate_"}}
)

func (s schema) row(label, backend string, summary types.RunSummary) []string {
	row := make([]string, 0, len(s.header))
	row = append(row, label)
	for _, prefix := range s.trends {
		metric := summary.Metrics[prefix+backend]
		for _, key := range trendKeys {
			row = append(row, cell(metric.Value(key)))
		}
	}
	rate, ok := summary.Metrics["success_"+backend].Rate()
	row = append(row, cell(rate, ok))
	return row
}

func cell(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// toCSV joins fields with commas. Fields are labels and numbers, so no
// quoting is applied.
func toCSV(fields []string) string {
	return strings.Join(fields, ",")
}

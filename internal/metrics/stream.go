package metrics

import (
	"math"
	"sort"

	"github.com/pingsantohq/cidbench/pkg/types"
)

// Spec declares a named stream and how its samples are summarised.
type Spec struct {
	Name     string
	Type     string
	Contains string
}

func RateSpec(name string) Spec {
	return Spec{Name: name, Type: types.MetricTypeRate, Contains: types.ContainsDefault}
}

// TrendSpec declares a distribution; time trends hold milliseconds.
func TrendSpec(name string, isTime bool) Spec {
	contains := types.ContainsDefault
	if isTime {
		contains = types.ContainsTime
	}
	return Spec{Name: name, Type: types.MetricTypeTrend, Contains: contains}
}

func CounterSpec(name string) Spec {
	return Spec{Name: name, Type: types.MetricTypeCounter, Contains: types.ContainsData}
}

type rateAcc struct {
	passes int64
	fails  int64
}

func (r *rateAcc) merge(o rateAcc) {
	r.passes += o.passes
	r.fails += o.fails
}

func (r rateAcc) values() map[string]float64 {
	values := map[string]float64{
		"passes": float64(r.passes),
		"fails":  float64(r.fails),
	}
	if total := r.passes + r.fails; total > 0 {
		values["rate"] = float64(r.passes) / float64(total)
	}
	return values
}

type counterAcc struct {
	sum float64
}

func (c counterAcc) values(elapsedSeconds float64) map[string]float64 {
	rate := 0.0
	if elapsedSeconds > 0 {
		rate = c.sum / elapsedSeconds
	}
	return map[string]float64{"count": c.sum, "rate": rate}
}

// trendValues summarises samples. An empty slice yields an empty map.
func trendValues(samples []float64) map[string]float64 {
	if len(samples) == 0 {
		return map[string]float64{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return map[string]float64{
		"avg":   sum / float64(len(sorted)),
		"min":   sorted[0],
		"med":   Percentile(sorted, 50),
		"max":   sorted[len(sorted)-1],
		"p(90)": Percentile(sorted, 90),
		"p(95)": Percentile(sorted, 95),
	}
}

// Percentile interpolates linearly between the closest ranks of an ascending
// sample set: rank = p/100*(n-1), value = s[lo] + (s[hi]-s[lo])*(rank-lo).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := math.Floor(rank)
	hi := math.Ceil(rank)
	low := sorted[int(lo)]
	if lo == hi {
		return low
	}
	return low + (sorted[int(hi)]-low)*(rank-lo)
}

package metrics

import (
	"fmt"
	"sort"

	dto "github.com/prometheus/client_model/go"
)

// Snapshot holds point-in-time totals for every counter and gauge in the
// registry, keyed by fully-qualified metric name. Labelled series are
// summed into their family total.
type Snapshot struct {
	Values map[string]float64
}

// Snapshot gathers the registry and flattens counter and gauge families
// into name → total. Histograms contribute their sample count under a
// "_count" suffix.
func (c *Collector) Snapshot() (*Snapshot, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	s := &Snapshot{Values: make(map[string]float64, len(families))}
	for _, family := range families {
		name := family.GetName()
		for _, m := range family.GetMetric() {
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				s.Values[name] += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Values[name] += m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				s.Values[name+"_count"] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return s, nil
}

// Total returns the summed value for a metric name, zero when absent.
func (s *Snapshot) Total(name string) float64 {
	return s.Values[name]
}

// Names returns every metric name in the snapshot, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

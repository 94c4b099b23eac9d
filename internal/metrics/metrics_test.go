package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRegistryRecordsEventsProcessed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventsProcessed.WithLabelValues("new_request", "finished").Inc()
	m.EventsProcessed.WithLabelValues("new_request", "finished").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var counter *dto.Metric
	for _, f := range families {
		if f.GetName() == "idds_events_processed_total" {
			counter = f.Metric[0]
		}
	}
	require.NotNil(t, counter, "idds_events_processed_total must be registered")
	require.Equal(t, float64(2), counter.GetCounter().GetValue())
}

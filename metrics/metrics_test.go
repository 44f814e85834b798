package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCodeLabel(t *testing.T) {
	tests := []struct {
		cc   uint8
		want string
	}{
		{0x00, "0x00"},
		{0x82, "0x82"},
		{0xFF, "0xFF"},
	}
	for _, tt := range tests {
		if got := CodeLabel(tt.cc); got != tt.want {
			t.Errorf("CodeLabel(0x%02X) = %q, want %q", tt.cc, got, tt.want)
		}
	}
}

func TestCollectorsRegistered(t *testing.T) {
	before := testutil.ToFloat64(UAUpdatesTotal.WithLabelValues(ResultSuccess))
	UAUpdatesTotal.WithLabelValues(ResultSuccess).Inc()
	if got := testutil.ToFloat64(UAUpdatesTotal.WithLabelValues(ResultSuccess)); got != before+1 {
		t.Errorf("pldm_ua_updates_total = %v, want %v", got, before+1)
	}

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "pldm_ua_updates_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n < 1 {
		t.Errorf("GatherAndCount() = %d, want at least 1 series", n)
	}
}

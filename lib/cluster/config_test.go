package cluster

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	d := DefaultConfig()
	tests := []struct {
		name        string
		cfg         Config
		wantRetries int
		wantTimeout time.Duration
	}{
		{"zero config", Config{}, d.MaxRetries, d.TopologyTimeout},
		{"explicit retries", Config{MaxRetries: 7}, 7, d.TopologyTimeout},
		{"retries disabled", Config{MaxRetries: -1}, 0, d.TopologyTimeout},
		{"explicit topology timeout", Config{TopologyTimeout: time.Second}, d.MaxRetries, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.withDefaults()
			if got.MaxRetries != tt.wantRetries {
				t.Errorf("MaxRetries = %d, want %d", got.MaxRetries, tt.wantRetries)
			}
			if got.TopologyTimeout != tt.wantTimeout {
				t.Errorf("TopologyTimeout = %s, want %s", got.TopologyTimeout, tt.wantTimeout)
			}
			if got.AckTimeout != d.AckTimeout || got.RetryBackoff != d.RetryBackoff {
				t.Errorf("zero durations not defaulted: %+v", got)
			}
		})
	}
}

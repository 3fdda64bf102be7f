package worker

import (
	"testing"
	"time"

	"invoicesync/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestPolicyFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SyncConfig
		want RetryPolicy
	}{
		{
			name: "defaults",
			cfg:  config.SyncConfig{},
			want: RetryPolicy{Interval: time.Minute, LockTTL: 2 * time.Minute, LockWait: 20 * time.Second},
		},
		{
			name: "explicit",
			cfg:  config.SyncConfig{Interval: 30 * time.Second, LockTTL: 45 * time.Second, LockWait: 5 * time.Second},
			want: RetryPolicy{Interval: 30 * time.Second, LockTTL: 45 * time.Second, LockWait: 5 * time.Second},
		},
		{
			name: "lock outlives interval",
			cfg:  config.SyncConfig{Interval: 5 * time.Minute, LockTTL: time.Minute},
			want: RetryPolicy{Interval: 5 * time.Minute, LockTTL: 5 * time.Minute, LockWait: 20 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PolicyFromConfig(tt.cfg))
		})
	}
}

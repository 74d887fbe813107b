package medication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFollowUpDelay(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"off", 0, false},
		{"OFF", 0, false},
		{"", 0, false},
		{"15m", 15 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"-5m", 0, true},
		{"0s", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFollowUpDelay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFollowUpDelay(t *testing.T) {
	assert.Equal(t, "off", FormatFollowUpDelay(0))
	assert.Equal(t, "15m0s", FormatFollowUpDelay(15*time.Minute))
}

package metrics

import (
	"testing"
	"time"
)

func TestSampleValidate(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		name    string
		sample  Sample
		wantErr bool
	}{
		{
			name:   "ordered phases",
			sample: Sample{1 * ms, 2 * ms, 3 * ms, 4 * ms, 5 * ms, 6 * ms, 1.5, 200},
		},
		{
			name:   "collapsed phases",
			sample: Sample{0, 2 * ms, 2 * ms, 2 * ms, 5 * ms, 5 * ms, 0, 204},
		},
		{
			name:    "connect before dns",
			sample:  Sample{3 * ms, 2 * ms, 3 * ms, 4 * ms, 5 * ms, 6 * ms, 0, 200},
			wantErr: true,
		},
		{
			name:    "total before ttfb",
			sample:  Sample{1 * ms, 2 * ms, 3 * ms, 4 * ms, 7 * ms, 6 * ms, 0, 200},
			wantErr: true,
		},
		{
			name:    "negative dns",
			sample:  Sample{-1, 2 * ms, 3 * ms, 4 * ms, 5 * ms, 6 * ms, 0, 200},
			wantErr: true,
		},
		{
			name:    "negative size",
			sample:  Sample{1 * ms, 2 * ms, 3 * ms, 4 * ms, 5 * ms, 6 * ms, -1, 200},
			wantErr: true,
		},
		{
			name:    "missing response code",
			sample:  Sample{1 * ms, 2 * ms, 3 * ms, 4 * ms, 5 * ms, 6 * ms, 0, 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sample.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSamplePhasesOrder(t *testing.T) {
	s := Sample{DNSResolution: 1, Connection: 2, AppConnect: 3, PreTransfer: 4, TTFB: 5, Total: 6}
	phases := s.Phases()
	if len(phases) != len(PhaseNames) {
		t.Fatalf("Expected %d phases, got %d", len(PhaseNames), len(phases))
	}
	for i, d := range phases {
		if d != time.Duration(i+1) {
			t.Errorf("Expected phase %s to be %d, got %d", PhaseNames[i], i+1, d)
		}
	}
}

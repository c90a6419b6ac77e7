package workflow

import "testing"

func TestComputeConfidence(t *testing.T) {
	tests := []struct {
		name         string
		idConfidence float64
		chunkCount   int
		hasRationale bool
		want         float64
	}{
		{
			name: "base only",
			want: 0.5,
		},
		{
			name:       "chunks accumulate",
			chunkCount: 2,
			want:       0.7,
		},
		{
			name:       "chunk boost capped at three",
			chunkCount: 10,
			want:       0.8,
		},
		{
			name:         "identification scaled",
			idConfidence: 0.5,
			want:         0.6,
		},
		{
			name:         "identification boost capped",
			idConfidence: 5.0,
			want:         0.7,
		},
		{
			name:         "rationale adds a tenth",
			hasRationale: true,
			want:         0.6,
		},
		{
			name:         "everything maxed clamps below one",
			idConfidence: 1.0,
			chunkCount:   10,
			hasRationale: true,
			want:         1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeConfidence(tt.idConfidence, tt.chunkCount, tt.hasRationale)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("computeConfidence(%v, %d, %v) = %v, want %v",
					tt.idConfidence, tt.chunkCount, tt.hasRationale, got, tt.want)
			}
		})
	}
}

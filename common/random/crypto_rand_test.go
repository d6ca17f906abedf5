package random_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/playletworks/drama-api/common/random"
)

func TestUniqueness(t *testing.T) {
	tests := []struct {
		name       string
		generator  func() string
		iterations int
	}{
		{
			name:       "GetUUID should always generate unique values",
			generator:  random.GetUUID,
			iterations: 10000,
		},
		{
			name:       "GenerateKey should always generate unique values",
			generator:  random.GenerateKey,
			iterations: 10000,
		},
		{
			name: "GetRandomString(10) should generate unique values",
			generator: func() string {
				return random.GetRandomString(10)
			},
			iterations: 10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[string]bool, tt.iterations)
			for range tt.iterations {
				v := tt.generator()
				require.False(t, seen[v], "duplicate value %q", v)
				seen[v] = true
			}
		})
	}
}

func TestGenerateKeyShape(t *testing.T) {
	key := random.GenerateKey()
	require.Len(t, key, 48)
}

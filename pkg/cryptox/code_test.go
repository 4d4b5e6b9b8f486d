package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	tests := []struct {
		name   string
		length int
	}{
		{"short code", 8},
		{"default email code", 12},
		{"long code", 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := GenerateCode(tt.length)
			require.NoError(t, err)
			require.Len(t, code, tt.length)

			for _, r := range code {
				require.True(t, strings.ContainsRune(codeAlphabet, r),
					"code %q contains character outside alphabet", code)
			}

			// Verify codes are unique (generate another and compare)
			code2, err := GenerateCode(tt.length)
			require.NoError(t, err)
			require.NotEqual(t, code, code2, "codes should be unique")
		})
	}
}

func TestGenerateCode_InvalidLength(t *testing.T) {
	for _, length := range []int{0, -1} {
		code, err := GenerateCode(length)
		require.Error(t, err)
		require.Empty(t, code)
	}
}

func TestMustGenerateCode_Panics(t *testing.T) {
	require.Panics(t, func() {
		MustGenerateCode(0)
	})
}

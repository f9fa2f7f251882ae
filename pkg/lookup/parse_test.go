package lookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBirthDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"slash format", "25/03/1980", "1980-03-25"},
		{"dash format", "01-12-1975", "1975-12-01"},
		{"already ISO passes through", "1980-03-25", "1980-03-25"},
		{"garbage passes through", "não informado", "não informado"},
		{"impossible date passes through", "32/13/1990", "32/13/1990"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeBirthDate(tt.input))
		})
	}
}

func TestParseIncome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{"thousands and decimal", "1.234,56", "1234.56", true},
		{"currency prefix", "R$ 2.350,75", "2350.75", true},
		{"no thousands", "980,00", "980", true},
		{"integer", "1500", "1500", true},
		{"malformed", "n/d", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := parseIncome(tt.input)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.expected, d.String())
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Maria Da Silva", normalizeName("MARIA DA SILVA"))
	assert.Equal(t, "José Antônio", normalizeName("JOSÉ ANTÔNIO"))
	// Mixed case is assumed intentional.
	assert.Equal(t, "Maria da Silva", normalizeName("Maria da Silva"))
}

func TestApplicationStatus(t *testing.T) {
	t.Parallel()

	status, ok := applicationStatus(map[string]any{"status": float64(200)})
	require.True(t, ok)
	assert.Equal(t, 200, status)

	status, ok = applicationStatus(map[string]any{"Status": "404"})
	require.True(t, ok)
	assert.Equal(t, 404, status)

	_, ok = applicationStatus(map[string]any{"outro": true})
	assert.False(t, ok)
}

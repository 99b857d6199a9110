package lodes

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToParquet(t *testing.T) {
	var out bytes.Buffer
	rows, err := ConvertToParquet(strings.NewReader(odCSV), &out)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	b := out.Bytes()
	require.Greater(t, len(b), 8)
	assert.Equal(t, "PAR1", string(b[:4]))
	assert.Equal(t, "PAR1", string(b[len(b)-4:]))
}

func TestConvertToParquet_BadInput(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty", ""},
		{"missing column", "w_geocode,h_geocode\n1,2\n"},
		{"non-numeric count", strings.Replace(odCSV, ",3,1,1,1,", ",x,1,1,1,", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConvertToParquet(strings.NewReader(tt.csv), &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

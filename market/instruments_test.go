package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePair(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"EUR_USD", "EUR_USD", false},
		{"EUR/USD", "EUR_USD", false},
		{"eurusd", "EUR_USD", false},
		{" usd-jpy ", "USD_JPY", false},
		{"CS.D.GBPUSD.TODAY.IP", "GBP_USD", false},
		{"EUR", "", true},
		{"EUR_US1", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePair(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPipAndTickSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0.0001", PipSize("EUR_USD").String())
	assert.Equal(t, "0.01", PipSize("USD/JPY").String())
	assert.Equal(t, "0.00001", TickSize("EUR_USD").String())
	assert.Equal(t, "0.001", TickSize("GBPJPY").String())
	assert.InDelta(t, 20.0, ToPips("EUR_USD", 0.0020), 1e-9)
	assert.InDelta(t, 15.0, ToPips("USD_JPY", 0.15), 1e-9)
}

func TestLookupSynthesizesUnknownPairs(t *testing.T) {
	t.Parallel()
	meta, err := Lookup("CAD_JPY")
	require.NoError(t, err)
	assert.Equal(t, "CAD", meta.BaseCurrency)
	assert.Equal(t, -2, meta.PipLocation)
	assert.True(t, IsJPY("CAD_JPY"))
	assert.False(t, IsJPY("EUR_GBP"))
}

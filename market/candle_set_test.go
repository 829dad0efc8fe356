package market

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `time,open,high,low,close,volume
2025-01-06T01:00:00Z,1.1010,1.1020,1.1000,1.1015,120
2025-01-06T00:00:00Z,1.1000,1.1012,1.0995,1.1010,100
2025-01-06T01:00:00Z,9,9,9,9,9
not-a-time,1,1,1,1
2025-01-06T02:00:00Z,1.1015,x,1.1010,1.1020
2025-01-06T03:00:00Z;1.1020;1.1030;1.1015;1.1025
`

func TestReadCandleSet(t *testing.T) {
	t.Parallel()
	cs, err := ReadCandleSet("EUR_USD", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	require.Len(t, cs.Candles, 3)
	assert.True(t, cs.Candles[0].Time.Before(cs.Candles[1].Time))
	assert.Equal(t, 1.1015, cs.Candles[1].Close, "duplicate keeps first row")
	assert.Equal(t, 120.0, cs.Candles[1].Volume)
	assert.Equal(t, 1.1025, cs.Candles[2].Close)

	st := cs.Stats()
	assert.Equal(t, 3, st.Candles)
	assert.Equal(t, 1, st.Duplicates)
	assert.Equal(t, 2, st.BadLines)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), st.Start)
}

func TestReadCandleSetEmpty(t *testing.T) {
	t.Parallel()
	_, err := ReadCandleSet("EUR_USD", strings.NewReader("time,open,high,low,close\n"))
	assert.Error(t, err)
}

func TestParseTimeLayouts(t *testing.T) {
	t.Parallel()
	want := time.Date(2025, 1, 6, 5, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2025-01-06T05:00:00Z",
		"2025-01-06 05:00:00",
		"20250106 000000",
		"1736139600",
	} {
		got, err := parseTime(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
}

func TestDirSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EUR_USD.csv"), []byte(sampleCSV), 0o644))

	src := DirSource{Dir: dir}
	from := time.Date(2025, 1, 6, 1, 0, 0, 0, time.UTC)
	got, err := src.Candles(context.Background(), "EUR/USD", from, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = src.Candles(context.Background(), "GBP_USD", time.Time{}, time.Time{})
	assert.Error(t, err)
}

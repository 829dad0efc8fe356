package market

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var estNoDST = time.FixedZone("EST", -5*60*60)

// Dukascopy/HistData ASCII layout, quoted in EST without DST.
const layout = "20060102 150405"

// CandleSet is a time-ordered candle series for one instrument.
type CandleSet struct {
	Instrument string
	Source     string
	Candles    []Candle

	Filepath   string
	duplicates int
	badLines   int
}

// Stats summarizes ingest problems for a loaded set.
type Stats struct {
	Candles    int
	Duplicates int
	BadLines   int
	Start      time.Time
	End        time.Time
}

// NewCandleSet loads a CSV file of candles. Accepted rows are
// time,open,high,low,close[,volume] separated by ',' or ';'.
// A header row is skipped.
func NewCandleSet(instrument, fname string) (*CandleSet, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cs, err := ReadCandleSet(instrument, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	cs.Filepath = fname
	return cs, nil
}

// ReadCandleSet parses candles from r. Rows are sorted by time and
// duplicate timestamps keep the first occurrence.
func ReadCandleSet(instrument string, r io.Reader) (*CandleSet, error) {
	cs := &CandleSet{Instrument: instrument, Source: "csv"}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	seen := make(map[int64]struct{})
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		sep := ","
		if strings.Contains(line, ";") {
			sep = ";"
		}
		parts := strings.Split(line, sep)
		if len(parts) < 5 {
			cs.badLines++
			continue
		}
		if isHeader(parts[0]) {
			continue
		}

		ts, err := parseTime(parts[0])
		if err != nil {
			cs.badLines++
			continue
		}

		var prices [4]float64
		ok := true
		for i := 1; i < 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
			if err != nil {
				ok = false
				break
			}
			prices[i-1] = v
		}
		if !ok {
			cs.badLines++
			continue
		}

		if _, dup := seen[ts.Unix()]; dup {
			cs.duplicates++
			continue
		}
		seen[ts.Unix()] = struct{}{}

		c := Candle{
			Time:  ts,
			Open:  prices[0],
			High:  prices[1],
			Low:   prices[2],
			Close: prices[3],
		}
		if len(parts) > 5 {
			c.Volume, _ = strconv.ParseFloat(strings.TrimSpace(parts[5]), 64)
		}
		cs.Candles = append(cs.Candles, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(cs.Candles) == 0 {
		return nil, fmt.Errorf("no candles found")
	}

	sort.SliceStable(cs.Candles, func(i, j int) bool {
		return cs.Candles[i].Time.Before(cs.Candles[j].Time)
	})
	return cs, nil
}

func (cs *CandleSet) Stats() Stats {
	s := Stats{
		Candles:    len(cs.Candles),
		Duplicates: cs.duplicates,
		BadLines:   cs.badLines,
	}
	if len(cs.Candles) > 0 {
		s.Start = cs.Candles[0].Time
		s.End = cs.Candles[len(cs.Candles)-1].Time
	}
	return s
}

// Between returns the candles whose time falls in [from, to). Zero bounds are open.
func (cs *CandleSet) Between(from, to time.Time) []Candle {
	out := make([]Candle, 0, len(cs.Candles))
	for _, c := range cs.Candles {
		if !from.IsZero() && c.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !c.Time.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CandleSource yields historical candles for a market.
type CandleSource interface {
	Candles(ctx context.Context, instrument string, from, to time.Time) ([]Candle, error)
}

// DirSource reads <Dir>/<INSTRUMENT>.csv, e.g. data/EUR_USD.csv.
type DirSource struct {
	Dir string
}

func (d DirSource) Candles(ctx context.Context, instrument string, from, to time.Time) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := NormalizePair(instrument)
	if err != nil {
		return nil, err
	}
	cs, err := NewCandleSet(name, filepath.Join(d.Dir, name+".csv"))
	if err != nil {
		return nil, err
	}
	return cs.Between(from, to), nil
}

func isHeader(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "time" || s == "timestamp" || s == "date" || s == "datetime"
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, f := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.ParseInLocation(layout, s, estNoDST); err == nil {
		return t.UTC(), nil
	}
	if u, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(u, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/fxcalib/market"
	"github.com/rustyeddy/fxcalib/rules"
)

// Builder assembles a Snapshot. Build validates once; the builder can be
// reused afterwards without affecting snapshots it already produced.
type Builder struct {
	s Snapshot
}

func NewBuilder(pair string) *Builder {
	return &Builder{s: Snapshot{
		pair:          pair,
		features:      map[Feature]float64{},
		gateOverrides: map[string]float64{},
		newsDir:       Neutral,
	}}
}

func (b *Builder) At(t time.Time) *Builder {
	b.s.ts = t
	return b
}

// Feature sets an indicator value. Non-finite values are treated as absent.
func (b *Builder) Feature(f Feature, v float64) *Builder {
	if o := some(v); o.ok {
		b.s.features[f] = v
	} else {
		delete(b.s.features, f)
	}
	return b
}

func (b *Builder) SARTrend(trend string) *Builder {
	b.s.sarTrend = trend
	return b
}

func (b *Builder) Trend30m(trend string) *Builder {
	b.s.trend30m = trend
	return b
}

func (b *Builder) Status(status string) *Builder {
	b.s.status = status
	return b
}

func (b *Builder) LastPrice(p float64) *Builder {
	b.s.lastPrice = some(p)
	return b
}

// Spread sets the spread estimate in price units.
func (b *Builder) Spread(p float64) *Builder {
	b.s.spread = some(p)
	return b
}

func (b *Builder) ATRPips(p float64) *Builder {
	b.s.atrPips = some(p)
	return b
}

func (b *Builder) Sentiment(longPct, shortPct float64) *Builder {
	b.s.sentLong = some(longPct)
	b.s.sentShort = some(shortPct)
	return b
}

func (b *Builder) LevelConstraints(minStopPips, minLimitPips float64) *Builder {
	b.s.minStop = some(minStopPips)
	b.s.minLimit = some(minLimitPips)
	return b
}

func (b *Builder) GateOverride(name string, v float64) *Builder {
	if some(v).ok {
		b.s.gateOverrides[name] = v
	}
	return b
}

func (b *Builder) DataAge(sec float64) *Builder {
	b.s.dataAge = some(sec)
	return b
}

func (b *Builder) Balance(v float64) *Builder {
	b.s.balance = some(v)
	return b
}

func (b *Builder) Blackout(on bool) *Builder {
	b.s.blackout = on
	return b
}

func (b *Builder) News(dir Direction, strength float64) *Builder {
	b.s.newsDir = dir
	b.s.newsStrength = strength
	return b
}

func (b *Builder) Rules(rs *rules.RuleSet) *Builder {
	b.s.rules = rs
	return b
}

// Build validates the structural requirements and returns the snapshot.
func (b *Builder) Build() (*Snapshot, error) {
	s := b.s

	var errs []error
	norm, err := market.NormalizePair(s.pair)
	if err != nil {
		errs = append(errs, err)
	}
	s.normPair = norm
	if s.ts.IsZero() {
		errs = append(errs, fmt.Errorf("timestamp is required"))
	}
	if s.newsDir == "" {
		s.newsDir = Neutral
	}
	switch s.newsDir {
	case Buy, Sell, Neutral:
	default:
		errs = append(errs, fmt.Errorf("news direction %q is not buy, sell or neutral", s.newsDir))
	}
	if s.newsStrength < 0 || s.newsStrength > 1 || !some(s.newsStrength).ok {
		errs = append(errs, fmt.Errorf("news strength %v outside [0,1]", s.newsStrength))
	}
	for _, o := range []opt{s.sentLong, s.sentShort} {
		if o.ok && (o.v < 0 || o.v > 100) {
			errs = append(errs, fmt.Errorf("sentiment %v outside [0,100]", o.v))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("snapshot %s: %w", s.pair, errors.Join(errs...))
	}

	s.features = make(map[Feature]float64, len(b.s.features))
	for k, v := range b.s.features {
		s.features[k] = v
	}
	s.gateOverrides = make(map[string]float64, len(b.s.gateOverrides))
	for k, v := range b.s.gateOverrides {
		s.gateOverrides[k] = v
	}
	return &s, nil
}

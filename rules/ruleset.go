// Package rules holds the immutable, layered rule set consumed by the
// decision engine and produced by calibration.
//
// A key such as "gates.adx_min" resolves through three layers:
// emergency overrides, then the override of the bound market, then the
// base rules. The caller's default applies when no layer has the key.
package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rustyeddy/fxcalib/market"
)

// Section names inside the base rules.
const (
	SectionGates         = "gates"
	SectionRisk          = "risk"
	SectionExecution     = "execution"
	SectionCooldowns     = "cooldowns"
	SectionConfluence    = "confluence"
	SectionSentimentGate = "sentiment_gate"
	SectionSessionFilter = "session_filter"
)

// RuleSet is safe to share between goroutines. It has no setters; With
// and ForMarket return new values.
type RuleSet struct {
	tag       string
	base      map[string]any
	overrides map[string]map[string]any
	emergency map[string]any
	metadata  map[string]any
	market    string
}

type Option func(*RuleSet)

// WithMarketOverrides sets per-market overrides. Market keys are normalized.
func WithMarketOverrides(m map[string]map[string]any) Option {
	return func(rs *RuleSet) {
		for pair, ov := range m {
			key := pair
			if n, err := market.NormalizePair(pair); err == nil {
				key = n
			}
			rs.overrides[key] = copyMap(ov)
		}
	}
}

func WithEmergencyOverrides(m map[string]any) Option {
	return func(rs *RuleSet) { rs.emergency = copyMap(m) }
}

func WithMetadata(m map[string]any) Option {
	return func(rs *RuleSet) { rs.metadata = copyMap(m) }
}

// New builds a rule set. All maps are deep-copied.
func New(tag string, base map[string]any, opts ...Option) *RuleSet {
	rs := &RuleSet{
		tag:       tag,
		base:      copyMap(base),
		overrides: map[string]map[string]any{},
		emergency: map[string]any{},
		metadata:  map[string]any{},
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

func (rs *RuleSet) clone() *RuleSet {
	c := &RuleSet{
		tag:       rs.tag,
		base:      copyMap(rs.base),
		overrides: make(map[string]map[string]any, len(rs.overrides)),
		emergency: copyMap(rs.emergency),
		metadata:  copyMap(rs.metadata),
		market:    rs.market,
	}
	for k, v := range rs.overrides {
		c.overrides[k] = copyMap(v)
	}
	return c
}

func (rs *RuleSet) Tag() string    { return rs.tag }
func (rs *RuleSet) Market() string { return rs.market }

// Base returns a copy of the base rules.
func (rs *RuleSet) Base() map[string]any { return copyMap(rs.base) }

// MarketOverrides returns a copy of the per-market overrides.
func (rs *RuleSet) MarketOverrides() map[string]map[string]any {
	out := make(map[string]map[string]any, len(rs.overrides))
	for k, v := range rs.overrides {
		out[k] = copyMap(v)
	}
	return out
}

func (rs *RuleSet) EmergencyOverrides() map[string]any { return copyMap(rs.emergency) }
func (rs *RuleSet) Metadata() map[string]any           { return copyMap(rs.metadata) }

// Markets lists the markets that carry overrides, sorted.
func (rs *RuleSet) Markets() []string {
	out := make([]string, 0, len(rs.overrides))
	for k := range rs.overrides {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ForMarket returns a copy bound to pair so that its overrides apply.
func (rs *RuleSet) ForMarket(pair string) *RuleSet {
	c := rs.clone()
	if n, err := market.NormalizePair(pair); err == nil {
		pair = n
	}
	c.market = pair
	return c
}

// WithTag returns a copy carrying a different tag.
func (rs *RuleSet) WithTag(tag string) *RuleSet {
	c := rs.clone()
	c.tag = tag
	return c
}

// With returns a copy whose base has key set to value. The key is removed
// from every market override so the new value is the effective one;
// emergency overrides still win.
func (rs *RuleSet) With(key string, value any) *RuleSet {
	c := rs.clone()
	setPath(c.base, key, normalize(value))
	for _, ov := range c.overrides {
		deletePath(ov, key)
	}
	return c
}

// Lookup resolves a dotted key through the layers.
func (rs *RuleSet) Lookup(key string) (any, bool) {
	if v, ok := getPath(rs.emergency, key); ok {
		return v, true
	}
	if rs.market != "" {
		if ov, ok := rs.overrides[rs.market]; ok {
			if v, ok := getPath(ov, key); ok {
				return v, true
			}
		}
	}
	return getPath(rs.base, key)
}

// Get returns the resolved value for key or def.
func (rs *RuleSet) Get(key string, def any) any {
	if v, ok := rs.Lookup(key); ok && v != nil {
		return v
	}
	return def
}

// OptFloat reports a numeric value and whether one was configured.
// Non-numeric values count as absent.
func (rs *RuleSet) OptFloat(key string) (float64, bool) {
	v, ok := rs.Lookup(key)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func (rs *RuleSet) Float(key string, def float64) float64 {
	if f, ok := rs.OptFloat(key); ok {
		return f
	}
	return def
}

func (rs *RuleSet) Int(key string, def int) int {
	if f, ok := rs.OptFloat(key); ok {
		return int(f)
	}
	return def
}

func (rs *RuleSet) Bool(key string, def bool) bool {
	v, ok := rs.Lookup(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if p, err := strconv.ParseBool(b); err == nil {
			return p
		}
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return def
}

func (rs *RuleSet) String(key string, def string) string {
	v, ok := rs.Lookup(key)
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings reads a list. A single string is a one-element list.
func (rs *RuleSet) Strings(key string, def []string) []string {
	v, ok := rs.Lookup(key)
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return append([]string(nil), s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return def
}

// Map returns a copy of the nested map at key.
func (rs *RuleSet) Map(key string) map[string]any {
	if v, ok := rs.Lookup(key); ok {
		if m, ok := v.(map[string]any); ok {
			return copyMap(m)
		}
	}
	return nil
}

// Section is a read view scoped to one section of the rules.
type Section struct {
	rs     *RuleSet
	prefix string
}

func (rs *RuleSet) Section(name string) Section { return Section{rs: rs, prefix: name + "."} }

func (rs *RuleSet) Gates() Section         { return rs.Section(SectionGates) }
func (rs *RuleSet) Risk() Section          { return rs.Section(SectionRisk) }
func (rs *RuleSet) Execution() Section     { return rs.Section(SectionExecution) }
func (rs *RuleSet) Cooldowns() Section     { return rs.Section(SectionCooldowns) }
func (rs *RuleSet) Confluence() Section    { return rs.Section(SectionConfluence) }
func (rs *RuleSet) SentimentGate() Section { return rs.Section(SectionSentimentGate) }
func (rs *RuleSet) SessionFilter() Section { return rs.Section(SectionSessionFilter) }

func (s Section) Get(name string, def any) any               { return s.rs.Get(s.prefix+name, def) }
func (s Section) Lookup(name string) (any, bool)             { return s.rs.Lookup(s.prefix + name) }
func (s Section) OptFloat(name string) (float64, bool)       { return s.rs.OptFloat(s.prefix + name) }
func (s Section) Float(name string, def float64) float64     { return s.rs.Float(s.prefix+name, def) }
func (s Section) Int(name string, def int) int               { return s.rs.Int(s.prefix+name, def) }
func (s Section) Bool(name string, def bool) bool            { return s.rs.Bool(s.prefix+name, def) }
func (s Section) String(name string, def string) string      { return s.rs.String(s.prefix+name, def) }
func (s Section) Strings(name string, def []string) []string { return s.rs.Strings(s.prefix+name, def) }
func (s Section) Map(name string) map[string]any             { return s.rs.Map(s.prefix + name) }

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func getPath(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	parts := strings.Split(key, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func deletePath(m map[string]any, key string) {
	parts := strings.Split(key, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// normalize turns decoder output (map[any]any, []string, ...) into the
// map[string]any / []any shapes used internally, copying as it goes.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case map[string]float64:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	}
	return v
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

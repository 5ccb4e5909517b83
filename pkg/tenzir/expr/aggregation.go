// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package expr

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/tenzir/pipeline-core/pkg/tenzir/batch"
)

// gob requires concrete interface implementations to be registered before
// they can appear inside an encoded `any`; these are the scalar kinds
// that can legally end up as aggregation state.
func init() {
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(false)
}

// Aggregation is a stateful scalar-reducing function used by `summarize`
//. Aggregations
// participate in the checkpoint protocol directly via Save/Restore, so a
// `summarize` operator can serialize them unchanged at a marker boundary.
type Aggregation interface {
	// Update folds one column's worth of values (for one grouping-key
	// partition, already selected by the caller) into the running state.
	Update(column []any) error
	Get() (any, error)
	Save() ([]byte, error)
	Restore(blob []byte) error
	Reset()
}

// registerBuiltinAggregations populates mode, value_counts, once,
// count_distinct, min, max, sum, the last three polymorphic
// over int64/uint64/double.
func (r *Registry) registerBuiltinAggregations() {
	r.aggregations = map[string]func() Aggregation{
		"mode":          func() Aggregation { return &modeAgg{counts: map[any]int{}} },
		"value_counts":  func() Aggregation { return &valueCountsAgg{counts: map[any]int{}} },
		"once":          func() Aggregation { return &onceAgg{} },
		"count_distinct": func() Aggregation { return &countDistinctAgg{seen: map[any]struct{}{}} },
		"min":           func() Aggregation { return &minMaxAgg{mode: aggMin} },
		"max":           func() Aggregation { return &minMaxAgg{mode: aggMax} },
		"sum":           func() Aggregation { return &sumAgg{} },
	}
}

func (r *Registry) NewAggregation(name string) (Aggregation, bool) {
	ctor, ok := r.aggregations[name]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// ColumnOf pulls the named column's values out of a batch for feeding into
// Aggregation.Update, used by the `summarize` operator.
func ColumnOf(b *batch.Batch, field string) ([]any, error) {
	c, ok := b.Column(field)
	if !ok {
		return nil, fmt.Errorf("no such field %q", field)
	}
	return c.Values, nil
}

// --- mode: most frequent non-null value ---

type modeAgg struct {
	counts map[any]int
}

func (a *modeAgg) Update(column []any) error {
	for _, v := range column {
		if v == nil {
			continue
		}
		a.counts[v]++
	}
	return nil
}

func (a *modeAgg) Get() (any, error) {
	var best any
	bestN := -1
	for v, n := range a.counts {
		if n > bestN {
			best, bestN = v, n
		}
	}
	return best, nil
}

func (a *modeAgg) Save() ([]byte, error)   { return gobEncode(a.counts) }
func (a *modeAgg) Restore(b []byte) error  { return gobDecode(b, &a.counts) }
func (a *modeAgg) Reset()                  { a.counts = map[any]int{} }

// --- value_counts: frequency table of all observed values ---

type valueCountsAgg struct {
	counts map[any]int
}

func (a *valueCountsAgg) Update(column []any) error {
	for _, v := range column {
		if v == nil {
			continue
		}
		a.counts[v]++
	}
	return nil
}

func (a *valueCountsAgg) Get() (any, error) {
	out := make(map[string]int, len(a.counts))
	for v, n := range a.counts {
		out[fmt.Sprint(v)] = n
	}
	return out, nil
}

func (a *valueCountsAgg) Save() ([]byte, error)  { return gobEncode(a.counts) }
func (a *valueCountsAgg) Restore(b []byte) error { return gobDecode(b, &a.counts) }
func (a *valueCountsAgg) Reset()                 { a.counts = map[any]int{} }

// --- once: the first non-null value seen, ignoring all later updates ---

type onceAgg struct {
	value any
	set   bool
}

func (a *onceAgg) Update(column []any) error {
	if a.set {
		return nil
	}
	for _, v := range column {
		if v != nil {
			a.value, a.set = v, true
			return nil
		}
	}
	return nil
}

func (a *onceAgg) Get() (any, error) { return a.value, nil }
func (a *onceAgg) Save() ([]byte, error) {
	return gobEncode(struct {
		V any
		S bool
	}{a.value, a.set})
}
func (a *onceAgg) Restore(b []byte) error {
	var s struct {
		V any
		S bool
	}
	if err := gobDecode(b, &s); err != nil {
		return err
	}
	a.value, a.set = s.V, s.S
	return nil
}
func (a *onceAgg) Reset() { a.value, a.set = nil, false }

// --- count_distinct ---

type countDistinctAgg struct {
	seen map[any]struct{}
}

func (a *countDistinctAgg) Update(column []any) error {
	for _, v := range column {
		if v == nil {
			continue
		}
		a.seen[v] = struct{}{}
	}
	return nil
}

func (a *countDistinctAgg) Get() (any, error) { return int64(len(a.seen)), nil }
func (a *countDistinctAgg) Save() ([]byte, error) {
	keys := make([]any, 0, len(a.seen))
	for k := range a.seen {
		keys = append(keys, k)
	}
	return gobEncode(keys)
}
func (a *countDistinctAgg) Restore(b []byte) error {
	var keys []any
	if err := gobDecode(b, &keys); err != nil {
		return err
	}
	a.seen = make(map[any]struct{}, len(keys))
	for _, k := range keys {
		a.seen[k] = struct{}{}
	}
	return nil
}
func (a *countDistinctAgg) Reset() { a.seen = map[any]struct{}{} }

// --- min/max: polymorphic over int64/uint64/double ---

type minMaxMode int

const (
	aggMin minMaxMode = iota
	aggMax
)

type minMaxAgg struct {
	mode minMaxMode
	best any
	set  bool
}

func (a *minMaxAgg) Update(column []any) error {
	for _, v := range column {
		if v == nil {
			continue
		}
		if !a.set {
			a.best, a.set = v, true
			continue
		}
		c, err := compareNumeric(v, a.best)
		if err != nil {
			return err
		}
		if (a.mode == aggMin && c < 0) || (a.mode == aggMax && c > 0) {
			a.best = v
		}
	}
	return nil
}

func (a *minMaxAgg) Get() (any, error) { return a.best, nil }
func (a *minMaxAgg) Save() ([]byte, error) {
	return gobEncode(struct {
		V any
		S bool
	}{a.best, a.set})
}
func (a *minMaxAgg) Restore(b []byte) error {
	var s struct {
		V any
		S bool
	}
	if err := gobDecode(b, &s); err != nil {
		return err
	}
	a.best, a.set = s.V, s.S
	return nil
}
func (a *minMaxAgg) Reset() { a.best, a.set = nil, false }

func compareNumeric(a, b any) (int, error) {
	af, err := toFloat(a)
	if err != nil {
		return 0, err
	}
	bf, err := toFloat(b)
	if err != nil {
		return 0, err
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("aggregation: non-numeric value %T", v)
	}
}

// --- sum: polymorphic over int64/uint64/double ---

type sumAgg struct {
	intTotal    int64
	floatTotal  float64
	sawFloat    bool
	sawAny      bool
}

func (a *sumAgg) Update(column []any) error {
	for _, v := range column {
		if v == nil {
			continue
		}
		a.sawAny = true
		switch x := v.(type) {
		case int64:
			a.intTotal += x
		case uint64:
			a.intTotal += int64(x)
		case float64:
			a.sawFloat = true
			a.floatTotal += x
		default:
			return fmt.Errorf("sum: non-numeric value %T", v)
		}
	}
	return nil
}

func (a *sumAgg) Get() (any, error) {
	if !a.sawAny {
		return nil, nil
	}
	if a.sawFloat {
		return a.floatTotal + float64(a.intTotal), nil
	}
	return a.intTotal, nil
}

func (a *sumAgg) Save() ([]byte, error) {
	return gobEncode(struct {
		I int64
		F float64
		SF, SA bool
	}{a.intTotal, a.floatTotal, a.sawFloat, a.sawAny})
}

func (a *sumAgg) Restore(b []byte) error {
	var s struct {
		I int64
		F float64
		SF, SA bool
	}
	if err := gobDecode(b, &s); err != nil {
		return err
	}
	a.intTotal, a.floatTotal, a.sawFloat, a.sawAny = s.I, s.F, s.SF, s.SA
	return nil
}
func (a *sumAgg) Reset() { *a = sumAgg{} }

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

package tasks

import (
	"context"
	"sort"

	"github.com/seantiz/nutristat/internal/dataset"
)

// rankingSize is the number of states returned by best5 and worst5.
const rankingSize = 5

// Stats computes aggregate statistics over a read-only dataset.
type Stats struct {
	ds      *dataset.Dataset
	catalog *dataset.Catalog
}

// NewStats creates a Stats over ds, ranking questions by catalog.
func NewStats(ds *dataset.Dataset, catalog *dataset.Catalog) *Stats {
	return &Stats{ds: ds, catalog: catalog}
}

// NewDatasetRegistry returns a registry with every task kind bound to the
// matching Stats method.
func NewDatasetRegistry(ds *dataset.Dataset, catalog *dataset.Catalog) *Registry {
	s := NewStats(ds, catalog)
	r := NewRegistry()
	r.Register(KindStatesMean, func(_ context.Context, a Args) (any, error) { return s.StatesMean(a.Question), nil })
	r.Register(KindStateMean, func(_ context.Context, a Args) (any, error) { return s.StateMean(a.State, a.Question), nil })
	r.Register(KindBest5, func(_ context.Context, a Args) (any, error) { return s.Best5(a.Question), nil })
	r.Register(KindWorst5, func(_ context.Context, a Args) (any, error) { return s.Worst5(a.Question), nil })
	r.Register(KindGlobalMean, func(_ context.Context, a Args) (any, error) { return s.GlobalMean(a.Question), nil })
	r.Register(KindDiffFromMean, func(_ context.Context, a Args) (any, error) { return s.DiffFromMean(a.Question), nil })
	r.Register(KindStateDiffFromMean, func(_ context.Context, a Args) (any, error) { return s.StateDiffFromMean(a.State, a.Question), nil })
	r.Register(KindMeanByCategory, func(_ context.Context, a Args) (any, error) { return s.MeanByCategory(a.Question), nil })
	r.Register(KindStateMeanByCategory, func(_ context.Context, a Args) (any, error) { return s.StateMeanByCategory(a.State, a.Question), nil })
	return r
}

type accumulator struct {
	sum   float64
	count int
}

func (a *accumulator) add(v float64) {
	a.sum += v
	a.count++
}

func (a accumulator) mean() float64 {
	return a.sum / float64(a.count)
}

// value returns the mean, or nil (JSON null) when nothing was added.
func (a accumulator) value() any {
	if a.count == 0 {
		return nil
	}
	return a.mean()
}

// StatesMean returns the mean value per state for question, ascending by value.
// States without recorded values are omitted.
func (s *Stats) StatesMean(question string) Object {
	acc := make(map[string]*accumulator)
	for _, row := range s.ds.Rows(question) {
		if !row.HasValue() {
			continue
		}
		a, ok := acc[row.State]
		if !ok {
			a = &accumulator{}
			acc[row.State] = a
		}
		a.add(row.Value)
	}

	out := make(Object, 0, len(acc))
	for state, a := range acc {
		out = append(out, Field{Key: state, Value: a.mean()})
	}
	sort.Slice(out, func(i, j int) bool {
		vi, vj := out[i].Value.(float64), out[j].Value.(float64)
		if vi != vj {
			return vi < vj
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// StateMean returns {state: mean} for question. The mean is nil when the
// state has no values for question.
func (s *Stats) StateMean(state, question string) Object {
	return Object{{Key: state, Value: s.stateAccumulator(state, question).value()}}
}

// Best5 returns the five best states for question. Which end is best comes
// from the question catalog.
func (s *Stats) Best5(question string) Object {
	means := s.StatesMean(question)
	if s.catalog.Direction(question) == dataset.DirectionMin {
		return head(means, rankingSize)
	}
	return head(reversed(means), rankingSize)
}

// Worst5 returns the five worst states for question.
func (s *Stats) Worst5(question string) Object {
	means := s.StatesMean(question)
	if s.catalog.Direction(question) == dataset.DirectionMin {
		return head(reversed(means), rankingSize)
	}
	return head(means, rankingSize)
}

// GlobalMean returns {"global_mean": mean} over every row of question, with
// a nil mean when the question has no values.
func (s *Stats) GlobalMean(question string) Object {
	return Object{{Key: "global_mean", Value: s.globalAccumulator(question).value()}}
}

// DiffFromMean returns global mean minus state mean for every state, in
// StatesMean order. A question without values yields an empty object.
func (s *Stats) DiffFromMean(question string) Object {
	global := s.globalAccumulator(question)
	means := s.StatesMean(question)
	if global.count == 0 {
		return Object{}
	}
	out := make(Object, len(means))
	for i, f := range means {
		out[i] = Field{Key: f.Key, Value: global.mean() - f.Value.(float64)}
	}
	return out
}

// StateDiffFromMean returns {state: global mean - state mean}. The
// difference is nil when either mean is undefined.
func (s *Stats) StateDiffFromMean(state, question string) Object {
	global := s.globalAccumulator(question)
	st := s.stateAccumulator(state, question)
	if global.count == 0 || st.count == 0 {
		return Object{{Key: state, Value: nil}}
	}
	return Object{{Key: state, Value: global.mean() - st.mean()}}
}

// MeanByCategory returns the mean per (state, category, segment), ordered by
// that tuple. Keys are formatted as "('state', 'category', 'segment')".
func (s *Stats) MeanByCategory(question string) Object {
	return s.groupMeans(question, func(r dataset.Row) ([]string, bool) {
		return []string{r.State, r.Category, r.Segment}, true
	})
}

// StateMeanByCategory returns {state: {"('category', 'segment')": mean}}.
func (s *Stats) StateMeanByCategory(state, question string) Object {
	inner := s.groupMeans(question, func(r dataset.Row) ([]string, bool) {
		return []string{r.Category, r.Segment}, r.State == state
	})
	return Object{{Key: state, Value: inner}}
}

func (s *Stats) globalAccumulator(question string) accumulator {
	var a accumulator
	for _, row := range s.ds.Rows(question) {
		if row.HasValue() {
			a.add(row.Value)
		}
	}
	return a
}

func (s *Stats) stateAccumulator(state, question string) accumulator {
	var a accumulator
	for _, row := range s.ds.Rows(question) {
		if row.State == state && row.HasValue() {
			a.add(row.Value)
		}
	}
	return a
}

// groupMeans averages the rows of question grouped by the key returned by
// group. Rows with an empty key part or no value are skipped.
func (s *Stats) groupMeans(question string, group func(dataset.Row) ([]string, bool)) Object {
	type bucket struct {
		parts []string
		acc   accumulator
	}
	buckets := make(map[string]*bucket)

	for _, row := range s.ds.Rows(question) {
		if !row.HasValue() {
			continue
		}
		parts, ok := group(row)
		if !ok || hasEmpty(parts) {
			continue
		}
		key := tupleKey(parts)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{parts: parts}
			buckets[key] = b
		}
		b.acc.add(row.Value)
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return lessParts(ordered[i].parts, ordered[j].parts)
	})

	out := make(Object, len(ordered))
	for i, b := range ordered {
		out[i] = Field{Key: tupleKey(b.parts), Value: b.acc.mean()}
	}
	return out
}

func tupleKey(parts []string) string {
	key := "("
	for i, p := range parts {
		if i > 0 {
			key += ", "
		}
		key += "'" + p + "'"
	}
	return key + ")"
}

func lessParts(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func hasEmpty(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return true
		}
	}
	return false
}

func reversed(o Object) Object {
	out := make(Object, len(o))
	for i, f := range o {
		out[len(o)-1-i] = f
	}
	return out
}

func head(o Object, n int) Object {
	if len(o) < n {
		return o
	}
	return o[:n]
}

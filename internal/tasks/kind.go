package tasks

import "fmt"

// Kind names a task type. The set of kinds is closed; see Kinds.
type Kind string

// Task kinds backed by the survey dataset.
const (
	KindStatesMean          Kind = "states_mean"
	KindStateMean           Kind = "state_mean"
	KindBest5               Kind = "best5"
	KindWorst5              Kind = "worst5"
	KindGlobalMean          Kind = "global_mean"
	KindDiffFromMean        Kind = "diff_from_mean"
	KindStateDiffFromMean   Kind = "state_diff_from_mean"
	KindMeanByCategory      Kind = "mean_by_category"
	KindStateMeanByCategory Kind = "state_mean_by_category"
)

var kinds = []Kind{
	KindStatesMean,
	KindStateMean,
	KindBest5,
	KindWorst5,
	KindGlobalMean,
	KindDiffFromMean,
	KindStateDiffFromMean,
	KindMeanByCategory,
	KindStateMeanByCategory,
}

// stateScoped lists the kinds that take a state argument.
var stateScoped = map[Kind]bool{
	KindStateMean:           true,
	KindStateDiffFromMean:   true,
	KindStateMeanByCategory: true,
}

// Kinds returns every known task kind in a stable order.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// ParseKind validates s as a known task kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// NeedsState reports whether the kind is scoped to a single state.
func (k Kind) NeedsState() bool {
	return stateScoped[k]
}

// Args are the arguments of a task invocation.
type Args struct {
	State    string `json:"state,omitempty"`
	Question string `json:"question"`
}

// Positional returns the arguments in invocation order: the state first
// for state-scoped kinds, then the question.
func (a Args) Positional(k Kind) []string {
	if k.NeedsState() {
		return []string{a.State, a.Question}
	}
	return []string{a.Question}
}

// Validate checks that the arguments required by k are present.
func (a Args) Validate(k Kind) error {
	if a.Question == "" {
		return fmt.Errorf("%s: question is required", k)
	}
	if k.NeedsState() && a.State == "" {
		return fmt.Errorf("%s: state is required", k)
	}
	return nil
}

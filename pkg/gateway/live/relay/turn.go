package relay

import "strings"

// turnState accumulates transcript fragments for the turn in progress.
type turnState struct {
	input       []string
	output      []string
	interrupted bool
}

func (t *turnState) reset() {
	t.input = nil
	t.output = nil
	t.interrupted = false
}

func (t *turnState) empty() bool {
	return len(t.input) == 0 && len(t.output) == 0 && !t.interrupted
}

// dedupJoin keeps the first occurrence of each fragment, in order, and joins
// them with single spaces.
func dedupJoin(fragments []string) string {
	if len(fragments) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(fragments))
	unique := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		unique = append(unique, f)
	}
	return strings.Join(unique, " ")
}

package agent

import (
	"sort"

	"github.com/zatuliveter/ai-da-dba/pkg/llms"
)

// Directive is one fully reassembled tool invocation for a round.
// Identity is the positional index; the id, name, and argument text are
// the concatenation of that index's fragments in arrival order.
type Directive struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// directiveAccumulator multiplexes streamed tool-call fragments back into
// whole directives. Fragments may arrive interleaved across indices, and
// some backends omit the index on some or all chunks.
type directiveAccumulator struct {
	byIndex map[int]*Directive
	next    int // next unused index for fragments without one
	last    int // index that an unindexed continuation fragment joins
}

func newDirectiveAccumulator() *directiveAccumulator {
	return &directiveAccumulator{
		byIndex: make(map[int]*Directive),
		last:    -1,
	}
}

// Add folds one fragment in. Index resolution: the backend-supplied index
// wins when it is a non-negative integer; otherwise a fragment carrying an
// id opens a new directive at the next unused index, and an id-less
// fragment continues the most recent one.
func (a *directiveAccumulator) Add(delta *llms.ToolCallDelta) {
	if delta == nil {
		return
	}

	var idx int
	switch {
	case delta.Index != nil && *delta.Index >= 0:
		idx = *delta.Index
		if idx >= a.next {
			a.next = idx + 1
		}
	case delta.ID != "" || a.last < 0:
		idx = a.next
		a.next++
	default:
		idx = a.last
	}
	a.last = idx

	d, ok := a.byIndex[idx]
	if !ok {
		d = &Directive{Index: idx}
		a.byIndex[idx] = d
	}

	d.ID += delta.ID
	d.Name += delta.Name
	d.Arguments += delta.Arguments
}

func (a *directiveAccumulator) Empty() bool {
	return len(a.byIndex) == 0
}

// Finalize fixes replay order: directives sorted by index, stable
// ascending.
func (a *directiveAccumulator) Finalize() []Directive {
	directives := make([]Directive, 0, len(a.byIndex))
	for _, d := range a.byIndex {
		directives = append(directives, *d)
	}
	sort.SliceStable(directives, func(i, j int) bool {
		return directives[i].Index < directives[j].Index
	})
	return directives
}

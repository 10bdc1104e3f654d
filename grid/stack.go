package grid

import (
	"sort"

	"github.com/oceanbench/habmap/pkg/errors"
)

// Stack is a set of named predictor layers sharing one shape and extent.
// Layer order is the order the model's predictor columns expect.
type Stack struct {
	names  []string
	layers map[string]*Grid
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{layers: make(map[string]*Grid)}
}

// Add appends a named layer. The first layer fixes the stack's shape; later
// layers must match it.
func (s *Stack) Add(name string, g *Grid) error {
	if _, exists := s.layers[name]; exists {
		return errors.NewValueError("Stack.Add", "duplicate layer name: "+name)
	}
	if len(s.names) > 0 {
		first := s.layers[s.names[0]]
		if !first.SameShape(g) {
			return errors.NewValueError("Stack.Add", "layer "+name+" does not share the stack's shape and extent")
		}
	}
	s.names = append(s.names, name)
	s.layers[name] = g
	return nil
}

// Names returns the layer names in insertion order.
func (s *Stack) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Layer returns a named layer.
func (s *Stack) Layer(name string) (*Grid, bool) {
	g, ok := s.layers[name]
	return g, ok
}

// Template returns a grid with the stack's shape and extent, all cells
// NoData, for building prediction surfaces.
func (s *Stack) Template() (*Grid, error) {
	if len(s.names) == 0 {
		return nil, errors.ErrEmptyData
	}
	first := s.layers[s.names[0]]
	return New(first.Rows, first.Cols, first.Extent, first.NoData), nil
}

// Rows and Cols report the shared shape. Zero for an empty stack.
func (s *Stack) Rows() int {
	if len(s.names) == 0 {
		return 0
	}
	return s.layers[s.names[0]].Rows
}

func (s *Stack) Cols() int {
	if len(s.names) == 0 {
		return 0
	}
	return s.layers[s.names[0]].Cols
}

// Align verifies that the stack's layer names match the trained predictor
// set exactly, and returns the layers reordered to the trained order.
// Mismatches fail fast with an AlignmentError naming every missing and
// extra layer.
func (s *Stack) Align(predictors []string) ([]*Grid, error) {
	var missing, extra []string

	have := make(map[string]bool, len(s.names))
	for _, name := range s.names {
		have[name] = true
	}
	want := make(map[string]bool, len(predictors))
	for _, name := range predictors {
		want[name] = true
		if !have[name] {
			missing = append(missing, name)
		}
	}
	for _, name := range s.names {
		if !want[name] {
			extra = append(extra, name)
		}
	}

	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return nil, errors.NewAlignmentError(missing, extra)
	}

	ordered := make([]*Grid, len(predictors))
	for i, name := range predictors {
		ordered[i] = s.layers[name]
	}
	return ordered, nil
}

// VectorAt assembles the predictor vector for one cell from the given
// ordered layers. ok is false when any layer is NoData at the cell.
func VectorAt(layers []*Grid, row, col int, dst []float64) bool {
	for i, g := range layers {
		if g.IsNoData(row, col) {
			return false
		}
		dst[i] = g.At(row, col)
	}
	return true
}

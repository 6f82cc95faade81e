package analysis

// Span is a maximal stretch of equal consecutive values in a sequence.
type Span[T comparable] struct {
	Value  T
	Start  int
	Length int
}

// End is the index of the last element in the span.
func (s Span[T]) End() int { return s.Start + s.Length - 1 }

// RunLengths run-length encodes seq. Runs break purely on value inequality
// between neighbours, so a run touching either end of seq is still emitted.
func RunLengths[T comparable](seq []T) []Span[T] {
	if len(seq) == 0 {
		return nil
	}

	runs := make([]Span[T], 0, 4)
	current := Span[T]{Value: seq[0], Start: 0, Length: 1}
	for i := 1; i < len(seq); i++ {
		if seq[i] == current.Value {
			current.Length++
			continue
		}
		runs = append(runs, current)
		current = Span[T]{Value: seq[i], Start: i, Length: 1}
	}
	return append(runs, current)
}

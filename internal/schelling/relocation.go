package schelling

// MoveLimit is the largest distance the relocation search explores for the
// agent at index on a line of the given size.
func MoveLimit(size, index int) int {
	return max(size-index, index)
}

// MoveToNearestSatisfying searches, by increasing distance, for the closest
// position where the agent at index would be satisfied, and returns the line
// with that move applied.
//
// At each distance d the move to index+d is tried while it stays inside the
// line; only once the right side is exhausted is index-d tried. A right move
// therefore always wins over a left move at the same distance.
//
// When no candidate satisfies the agent, the line of the last attempted move
// is returned with false. If no move could be attempted at all, the result is
// a copy of l. The input line is never modified.
func (p Params) MoveToNearestSatisfying(l Line, index int) (Line, bool) {
	size := len(l)
	limit := MoveLimit(size, index)

	last := -1
	for d := 1; d <= limit; d++ {
		var target int
		switch {
		case index+d < size:
			target = index + d
		case index-d >= 0:
			target = index - d
		default:
			continue
		}

		if p.happyAfterMove(l, index, target) {
			return l.MoveTo(index, target), true
		}
		last = target
	}

	if last < 0 {
		return l.Clone(), false
	}
	return l.MoveTo(index, last), false
}

// happyAfterMove reports whether the agent at from would be satisfied at to
// once moved there. Only the neighbourhood of to is read, through the index
// mapping of the move, so no candidate line is built.
func (p Params) happyAfterMove(l Line, from, to int) bool {
	at := func(j int) int {
		switch {
		case j == to:
			return l[from]
		case from < to && j >= from && j < to:
			return l[j+1]
		case to < from && j > to && j <= from:
			return l[j-1]
		default:
			return l[j]
		}
	}
	return p.homogeneity(len(l), to, at) >= p.Threshold
}

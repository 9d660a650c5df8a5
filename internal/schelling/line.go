package schelling

// Line is an ordered row of agents, each holding type 0 or 1.
// An agent has no identity beyond its current index.
type Line []int

// Clone returns an independent copy of l.
func (l Line) Clone() Line {
	if l == nil {
		return nil
	}
	out := make(Line, len(l))
	copy(out, l)
	return out
}

// Counts returns how many agents of type 0 and of type 1 the line holds.
func (l Line) Counts() [2]int {
	var c [2]int
	for _, v := range l {
		if v == 0 || v == 1 {
			c[v]++
		}
	}
	return c
}

// MoveTo returns a new line in which the agent at from has been removed and
// reinserted at to. Agents between the two positions shift by one towards
// from. The receiver is not modified. Indices outside the line panic.
func (l Line) MoveTo(from, to int) Line {
	out := make(Line, len(l))
	moveInto(out, l, from, to)
	return out
}

// moveInto writes the result of moving from→to over src into dst.
// dst and src must have the same length and must not overlap.
func moveInto(dst, src Line, from, to int) {
	copy(dst, src)
	moving := src[from]
	switch {
	case to > from:
		copy(dst[from:to], src[from+1:to+1])
	case to < from:
		copy(dst[to+1:from+1], src[to:from])
	}
	dst[to] = moving
}

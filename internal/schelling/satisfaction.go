package schelling

// reach is the largest useful distance from an agent: positions further away
// than the line is long lie outside it on both sides.
func (p Params) reach(size int) int {
	return min(p.Neighborhood, size-1)
}

// NeighborCount returns how many positions within the radius of index lie
// inside the line. Near either end it is smaller than 2*Neighborhood.
func (p Params) NeighborCount(l Line, index int) int {
	n := 0
	for d := 1; d <= p.reach(len(l)); d++ {
		if index+d < len(l) {
			n++
		}
		if index-d >= 0 {
			n++
		}
	}
	return n
}

// HomogeneityLevel returns the fraction of in-bounds neighbours of the agent
// at index that share its type. An agent without any neighbour (a line of
// length one) is fully homogeneous and the ratio is 1.
func (p Params) HomogeneityLevel(l Line, index int) float64 {
	return p.homogeneity(len(l), index, func(j int) int { return l[j] })
}

// IsHappy reports whether the agent at index meets the satisfaction threshold.
func (p Params) IsHappy(l Line, index int) bool {
	return p.HomogeneityLevel(l, index) >= p.Threshold
}

// homogeneity computes the ratio at index for a line of the given size whose
// values are read through at.
func (p Params) homogeneity(size, index int, at func(int) int) float64 {
	own := at(index)
	same, total := 0, 0
	for d := 1; d <= p.reach(size); d++ {
		if j := index + d; j < size {
			total++
			if at(j) == own {
				same++
			}
		}
		if j := index - d; j >= 0 {
			total++
			if at(j) == own {
				same++
			}
		}
	}
	if total == 0 {
		return 1
	}
	return float64(same) / float64(total)
}

package geom

// DefaultSimplifyTolerance is in units of the projected plane, roughly
// meters.
const DefaultSimplifyTolerance = 4.0

// SimplifyResult carries the reduced path plus the input indices retained,
// so parallel series (distances along the path) can be resampled to match.
type SimplifyResult struct {
	Coords  []Coord
	Indices []int
}

// Simplify runs Douglas-Peucker over the Mercator projection of the path.
// The first and last points are always kept; paths shorter than 3 points
// are returned unchanged.
func Simplify(coords []Coord, tolerance float64) SimplifyResult {
	if len(coords) < 3 {
		indices := make([]int, len(coords))
		for i := range indices {
			indices[i] = i
		}
		return SimplifyResult{Coords: coords, Indices: indices}
	}

	xs := make([]float64, len(coords))
	ys := make([]float64, len(coords))
	for i, coord := range coords {
		xs[i], ys[i] = toMercator(coord)
	}

	sqTolerance := tolerance * tolerance

	markers := make([]bool, len(coords))
	markers[0] = true
	markers[len(coords)-1] = true

	type span struct{ first, last int }
	stack := []span{{0, len(coords) - 1}}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		maxSqDist := 0.0
		maxIndex := 0
		for i := current.first + 1; i < current.last; i++ {
			sqDist := sqSegmentDistance(xs[i], ys[i],
				xs[current.first], ys[current.first], xs[current.last], ys[current.last])
			if sqDist > maxSqDist {
				maxSqDist = sqDist
				maxIndex = i
			}
		}

		if maxSqDist > sqTolerance {
			markers[maxIndex] = true
			stack = append(stack, span{current.first, maxIndex}, span{maxIndex, current.last})
		}
	}

	result := SimplifyResult{}
	for i, marked := range markers {
		if marked {
			result.Coords = append(result.Coords, coords[i])
			result.Indices = append(result.Indices, i)
		}
	}

	return result
}

// sqSegmentDistance is the squared planar distance from (px,py) to the
// segment (ax,ay)-(bx,by).
func sqSegmentDistance(px, py, ax, ay, bx, by float64) float64 {
	x, y := ax, ay
	dx, dy := bx-ax, by-ay

	if dx != 0 || dy != 0 {
		t := ((px-x)*dx + (py-y)*dy) / (dx*dx + dy*dy)

		if t > 1 {
			x, y = bx, by
		} else if t > 0 {
			x += dx * t
			y += dy * t
		}
	}

	dx = px - x
	dy = py - y

	return dx*dx + dy*dy
}

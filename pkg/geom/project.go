package geom

// DefaultAcceptDistance stops the segment scan early once a candidate
// within this many meters is found.
const DefaultAcceptDistance = 30.0

// Hit is the closest point found on a line for a query point.
type Hit struct {
	SegIndex int
	// Proj is the normalized projection parameter within the segment.
	Proj     float64
	Point    Coord
	Distance float64
}

// hitTestSegment projects p onto the segment a-b, clamping the projection
// parameter to [0,1], and measures the haversine distance to the closest
// point.
func hitTestSegment(p Coord, a Coord, b Coord) (float64, Coord) {
	dLon := b.Lon - a.Lon
	dLat := b.Lat - a.Lat

	proj := 0.0
	if dLon != 0 || dLat != 0 {
		proj = ((p.Lon-a.Lon)*dLon + (p.Lat-a.Lat)*dLat) / (dLon*dLon + dLat*dLat)
		if proj < 0 {
			proj = 0
		} else if proj > 1 {
			proj = 1
		}
	}

	closest := Coord{
		Lon: a.Lon + proj*dLon,
		Lat: a.Lat + proj*dLat,
	}

	return proj, closest
}

// HitTestLine scans segments of the line for the closest point to p.
// startSeg/startMinProj bound the search from below to enforce forward-only
// progress across ordered query points; endSeg (when >= 0) bounds it from
// above. The scan stops early once a hit within acceptDistance is found.
func HitTestLine(coords []Coord, p Coord, startSeg int, startMinProj float64, endSeg int, acceptDistance float64) Hit {
	best := Hit{SegIndex: startSeg, Distance: -1}

	lastSeg := len(coords) - 2
	if endSeg >= 0 && endSeg < lastSeg {
		lastSeg = endSeg
	}

	minProj := startMinProj
	for seg := startSeg; seg <= lastSeg; seg++ {
		proj, closest := hitTestSegment(p, coords[seg], coords[seg+1])
		if proj < minProj {
			proj = minProj
			closest = Coord{
				Lon: coords[seg].Lon + proj*(coords[seg+1].Lon-coords[seg].Lon),
				Lat: coords[seg].Lat + proj*(coords[seg+1].Lat-coords[seg].Lat),
			}
		}

		distance := Haversine(p, closest)
		if best.Distance < 0 || distance < best.Distance {
			best = Hit{SegIndex: seg, Proj: proj, Point: closest, Distance: distance}
		}

		// Only the first scanned segment is bounded from below.
		minProj = 0

		if best.Distance >= 0 && best.Distance < acceptDistance {
			break
		}
	}

	return best
}

// ProjectionResult carries composite distances along the line for a batch
// of ordered query points. NumBackward counts forward-progress violations;
// callers surface them as data-quality warnings, never failures.
type ProjectionResult struct {
	Distances   []float64
	NumBackward int
}

// ProjectPointsAlong projects ordered points (stops along a trip) onto the
// line, carrying each hit's segment and projection forward as the lower
// bound of the next search. The first point is pinned to the first segment.
func ProjectPointsAlong(coords []Coord, cumDistances []float64, points []Coord, acceptDistance float64) ProjectionResult {
	result := ProjectionResult{Distances: make([]float64, len(points))}

	if len(coords) < 2 {
		return result
	}

	prevSeg := 0
	prevProj := 0.0
	prevDistance := -1.0
	for i, point := range points {
		endSeg := -1
		if i == 0 {
			endSeg = 0
		}

		hit := HitTestLine(coords, point, prevSeg, prevProj, endSeg, acceptDistance)

		distance := cumDistances[hit.SegIndex] + Haversine(coords[hit.SegIndex], hit.Point)
		if distance < prevDistance {
			result.NumBackward++
		}

		result.Distances[i] = distance
		prevSeg = hit.SegIndex
		prevProj = hit.Proj
		prevDistance = distance
	}

	return result
}

package graph

import (
	"math"

	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/tidwall/rtree"
)

// spatialIndex is a 2-D tree over street node (lat, lng), used only as a
// proximity prefilter: it returns candidates by bounding-box membership,
// final ranking is always by haversine distance (never squared Euclidean
// in degrees, which badly distorts outside the equator).
type spatialIndex struct {
	tree rtree.RTreeG[NodeId]
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{}
}

func (s *spatialIndex) insert(loc geo.LatLng, id NodeId) {
	pt := [2]float64{loc.Lng, loc.Lat}
	s.tree.Insert(pt, pt, id)
}

// degreeBoxSteps are successively wider square half-widths (in degrees) to
// search before giving up. A degree of latitude is about 111km, so these
// steps cover roughly 110m, 1.1km, 11km, 110km, and finally the whole tree.
var degreeBoxSteps = []float64{0.001, 0.01, 0.1, 1.0}

// nearest returns the street node id minimizing haversine distance to loc,
// and that distance in meters. ok is false iff the index is empty.
func (s *spatialIndex) nearest(loc geo.LatLng) (id NodeId, distM float64, ok bool) {
	if s.tree.Len() == 0 {
		return 0, 0, false
	}

	best := math.Inf(1)
	var bestId NodeId
	found := false

	consider := func(candidate NodeId, candidateLoc geo.LatLng) {
		d := geo.HaversineMeters(loc, candidateLoc)
		if d < best {
			best = d
			bestId = candidate
			found = true
		}
	}

	locate := func(min, max [2]float64) geo.LatLng {
		return geo.LatLng{Lat: min[1], Lng: min[0]}
	}

	for _, halfWidth := range degreeBoxSteps {
		found = false
		min := [2]float64{loc.Lng - halfWidth, loc.Lat - halfWidth}
		max := [2]float64{loc.Lng + halfWidth, loc.Lat + halfWidth}
		s.tree.Search(min, max, func(min, max [2]float64, data NodeId) bool {
			consider(data, locate(min, max))
			return true
		})
		if found {
			// A node just outside the box can beat one in its corner, so scan
			// once more over the box bounding the circle of radius best.
			delta := best / geo.EarthRadiusM
			latHalf, lngHalf := delta*180/math.Pi, 180.0
			if ratio := math.Sin(delta) / math.Cos(loc.Lat*math.Pi/180); ratio < 1 {
				lngHalf = math.Asin(ratio) * 180 / math.Pi
			}
			min = [2]float64{loc.Lng - lngHalf, loc.Lat - latHalf}
			max = [2]float64{loc.Lng + lngHalf, loc.Lat + latHalf}
			s.tree.Search(min, max, func(min, max [2]float64, data NodeId) bool {
				consider(data, locate(min, max))
				return true
			})
			return bestId, best, true
		}
	}

	// Fall back to scanning the whole tree: the point is farther than the
	// widest box step from every street node (sparse or edge-of-coverage
	// graph), but a nearest node still exists.
	min := [2]float64{math.Inf(-1), math.Inf(-1)}
	max := [2]float64{math.Inf(1), math.Inf(1)}
	s.tree.Search(min, max, func(min, max [2]float64, data NodeId) bool {
		consider(data, locate(min, max))
		return true
	})
	return bestId, best, found
}

package osm

import (
	"fmt"

	"github.com/dsgvo/journeyplanner/internal/geo"
	"github.com/dsgvo/journeyplanner/internal/graph"
)

// validHighways is the set of highway tag values considered walkable/
// driveable enough to be worth a street edge.
var validHighways = map[string]bool{
	"motorway": true, "trunk": true, "primary": true, "secondary": true,
	"tertiary": true, "unclassified": true, "residential": true,
	"service": true, "living_street": true,
	"motorway_link": true, "trunk_link": true, "primary_link": true,
	"secondary_link": true, "tertiary_link": true,
	"footway": true, "cycleway": true, "bridleway": true, "path": true,
	"track": true, "pedestrian": true, "steps": true,
}

var deniedAccess = map[string]bool{
	"no": true, "private": true, "agricultural": true, "forestry": true,
}

// Report counts per-record problems tolerated during ingestion, per the
// error handling design's "tolerated and counted" policy.
type Report struct {
	WaysConsidered   int
	WaysAccepted     int
	NodesMaterialized int
	EdgesEmitted     int
	UnknownNodeRefs  int
}

// Ingest runs the three OSM passes against source, adding street nodes and
// edges to b.
func Ingest(b *graph.Builder, source ElementSource) (Report, error) {
	var report Report

	// Pass 1: way filter.
	var validWays []Way
	referenced := make(map[int64]bool)
	for _, w := range source.Ways() {
		report.WaysConsidered++
		if !isValidWay(w) {
			continue
		}
		report.WaysAccepted++
		validWays = append(validWays, w)
		for _, ref := range w.NodeRefs {
			referenced[ref] = true
		}
	}

	// Pass 2: node materialization.
	nodeIds := make(map[int64]graph.NodeId, len(referenced))
	for ref := range referenced {
		loc, ok := source.NodeLocation(ref)
		if !ok {
			continue
		}
		id := b.AddNode(graph.Node{
			Kind:       graph.KindStreetNode,
			ExternalId: externalId(ref),
			Location:   loc,
		})
		nodeIds[ref] = id
		report.NodesMaterialized++
	}

	// Pass 3: edge materialization.
	for _, w := range validWays {
		foot := tagAllows(w.Tags, "foot")
		bike := tagAllows(w.Tags, "bicycle")
		car := tagAllows(w.Tags, "motorcar")

		for i := 0; i+1 < len(w.NodeRefs); i++ {
			fromRef, toRef := w.NodeRefs[i], w.NodeRefs[i+1]
			from, fromOk := nodeIds[fromRef]
			to, toOk := nodeIds[toRef]
			if !fromOk || !toOk {
				report.UnknownNodeRefs++
				continue
			}

			length := geo.HaversineMeters(
				locationOf(b, from),
				locationOf(b, to),
			)

			b.AddEdge(from, graph.Edge{
				Kind: graph.KindStreetEdge, Origin: from, Destination: to,
				LengthM: uint32(length), Partial: false,
				Foot: foot, Bike: bike, Car: car,
			})
			b.AddEdge(to, graph.Edge{
				Kind: graph.KindStreetEdge, Origin: to, Destination: from,
				LengthM: uint32(length), Partial: false,
				Foot: foot, Bike: bike, Car: car,
			})
			report.EdgesEmitted += 2
		}
	}

	return report, nil
}

func isValidWay(w Way) bool {
	if !validHighways[w.Tags["highway"]] {
		return false
	}
	if deniedAccess[w.Tags["access"]] {
		return false
	}
	return true
}

// tagAllows implements the "absent => allowed, value \"no\" => forbidden"
// rule for foot/bicycle/motorcar tags.
func tagAllows(tags map[string]string, key string) bool {
	v, present := tags[key]
	if !present {
		return true
	}
	return v != "no"
}

func externalId(osmNodeId int64) string {
	return fmt.Sprintf("map#osm#%d", osmNodeId)
}

// locationOf is a small helper; the builder has no direct node reader, so
// ingestion packages that need to read back a just-added node go through
// this indirection. Exposed narrowly via graph.Builder.NodeLocation.
func locationOf(b *graph.Builder, id graph.NodeId) geo.LatLng {
	return b.NodeLocation(id)
}

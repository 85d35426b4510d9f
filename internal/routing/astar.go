// Package routing implements the time-dependent A* search over a built
// graph.Store: street edges cost distance over walking speed, transit
// edges cost a timetable lookup, and the heuristic assumes a speed no
// walker or vehicle on the graph can beat.
package routing

import (
	"container/heap"
	"context"
	"os"
	"strconv"

	"github.com/dsgvo/journeyplanner/internal/calendar"
	"github.com/dsgvo/journeyplanner/internal/errs"
	"github.com/dsgvo/journeyplanner/internal/graph"
)

// cancelCheckInterval is how often, in explored nodes, Search polls ctx.
const cancelCheckInterval = 1000

// defaultMaxExploredNodes bounds runaway searches on a disconnected or
// pathological graph; override with MAX_EXPLORED_NODES.
const defaultMaxExploredNodes = 200000

func maxExploredNodesFromEnv() int {
	if v := os.Getenv("MAX_EXPLORED_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultMaxExploredNodes
}

// Params are the per-query speed settings, in millimeters per second.
type Params struct {
	WalkingSpeedMMPerS   uint32
	EstimatorSpeedMMPerS uint32
}

// Predecessor is one entry of the search's predecessor map: how v was
// reached, and on what edge.
type Predecessor struct {
	From           graph.NodeId
	Edge           graph.Edge
	DepartureIndex *uint32 // set only when Edge is a TransitEdge
	ArrivalTime    uint32
}

// Result is everything itinerary reconstruction needs to walk the chain
// back from Target to Source.
type Result struct {
	Source, Target graph.NodeId
	StartTime      uint32
	Predecessors   map[graph.NodeId]Predecessor
	ArrivalTime    uint32
}

// Router runs searches against a fixed, immutable graph. A Router holds
// no per-search state, so the same Router may run concurrent searches.
type Router struct {
	store            *graph.Store
	allowReopen      bool
	maxExploredNodes int
}

// NewRouter returns a Router over store. With allowReopen false a node is
// finalized on pop and never revisited — lower latency, occasionally
// suboptimal across a transit wait, since a slower arrival can enable a
// shorter wait later. True omits the closed-set check for strict
// optimality at the cost of exploring more states.
func NewRouter(store *graph.Store, allowReopen bool) *Router {
	return &Router{store: store, allowReopen: allowReopen, maxExploredNodes: maxExploredNodesFromEnv()}
}

// item is one entry of the open set.
type item struct {
	node  graph.NodeId
	g     uint64
	f     uint64
	time  uint32
	index int
}

type openSet []*item

func (pq openSet) Len() int { return len(pq) }

func (pq openSet) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	if pq[i].g != pq[j].g {
		return pq[i].g < pq[j].g
	}
	return pq[i].time < pq[j].time
}

func (pq openSet) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *openSet) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*pq)
	*pq = append(*pq, it)
}

func (pq *openSet) Pop() interface{} {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*pq = old[:n-1]
	return it
}

// heuristic estimates the remaining cost from n to target, in the same
// units as g: node_distance(n, target) * 1000 / estimator_speed. Admissible
// because estimator_speed is configured at or above any real edge speed on
// the graph and node_distance is itself shrunk below the true chord length.
func (r *Router) heuristic(n, target graph.NodeId, estimatorSpeed uint32) uint64 {
	return uint64(r.store.NodeDistance(n, target)) * 1000 / uint64(estimatorSpeed)
}

// Search runs A* from source to target departing at startTime (seconds
// since midnight) on date (days since epoch), weekday. Returns
// errs.NoPathFound if the open set empties without reaching target, or if
// ctx is cancelled before that.
func (r *Router) Search(ctx context.Context, source, target graph.NodeId, startTime, date uint32, weekday calendar.Weekday, params Params) (*Result, error) {
	pq := &openSet{}
	heap.Init(pq)

	bestG := map[graph.NodeId]uint64{source: 0}
	visited := make(map[graph.NodeId]bool)
	predecessors := make(map[graph.NodeId]Predecessor)

	heap.Push(pq, &item{
		node: source,
		g:    0,
		f:    r.heuristic(source, target, params.EstimatorSpeedMMPerS),
		time: startTime,
	})

	explored := 0
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*item)

		if g, ok := bestG[cur.node]; ok && cur.g > g {
			continue // stale entry superseded by a later, cheaper push
		}

		if cur.node == target {
			return &Result{Source: source, Target: target, StartTime: startTime, Predecessors: predecessors, ArrivalTime: cur.time}, nil
		}

		explored++
		if explored > r.maxExploredNodes {
			return nil, &errs.NoPathFound{}
		}
		if explored%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return nil, &errs.NoPathFound{}
			default:
			}
		}

		visited[cur.node] = true

		for _, edge := range r.store.Adjacency(cur.node) {
			v := edge.Destination
			if !r.allowReopen && visited[v] {
				continue
			}

			var cost uint64
			var arrival uint32
			var depIndex *uint32

			switch edge.Kind {
			case graph.KindStreetEdge:
				if !edge.Foot {
					continue
				}
				cost = uint64(edge.LengthM) * 1000 / uint64(params.WalkingSpeedMMPerS)
				arrival = cur.time + uint32(cost)
			case graph.KindTransitEdge:
				boardTime := cur.time
				// A vehicle change at this stop honors the published
				// minimum transfer time, if any.
				if pred, ok := predecessors[cur.node]; ok && pred.Edge.Kind == graph.KindTransitEdge {
					if mt, ok := r.store.MinTransferSeconds(cur.node, cur.node); ok {
						boardTime += mt
					}
				}
				idx, seg, ok := r.store.NextDeparture(edge.Timetable, boardTime, date, weekday)
				if !ok {
					continue
				}
				cost = uint64(seg.Arrival) - uint64(cur.time)
				arrival = seg.Arrival
				idxCopy := idx
				depIndex = &idxCopy
			default:
				continue
			}

			gv := cur.g + cost
			if existing, ok := bestG[v]; ok && gv >= existing {
				continue
			}
			bestG[v] = gv
			predecessors[v] = Predecessor{From: cur.node, Edge: edge, DepartureIndex: depIndex, ArrivalTime: arrival}

			fv := gv + r.heuristic(v, target, params.EstimatorSpeedMMPerS)
			heap.Push(pq, &item{node: v, g: gv, f: fv, time: arrival})
		}
	}

	return nil, &errs.NoPathFound{}
}

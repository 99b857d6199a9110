package network

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// DefaultWalkSpeed is the walking speed used for street edges, in distance
// units per time unit (mph for mile-weighted streets).
const DefaultWalkSpeed = 3.0

// Edge kinds in a service graph.
const (
	EdgeWalk = "walk"
	EdgeBus  = "bus"
)

// Design is a service network design: routes and demand over a street graph,
// with a fleet to assign to the routes.
type Design struct {
	Routes    []Route
	ODFlows   []ODFlow
	Fleet     *FleetComposition
	Street    *simple.WeightedUndirectedGraph
	WalkSpeed float64

	assignments []*FleetAssignment
	services    []*serviceGraph
}

// NewDesign validates the design: at least one route and one OD flow, a bus
// per route, unique route names, connected OD pairs, route hops that are
// street edges, and positive finite edge weights.
func NewDesign(routes []Route, flows []ODFlow, fleet *FleetComposition, street *simple.WeightedUndirectedGraph) (*Design, error) {
	if len(routes) < 1 {
		return nil, errors.New("at least one route must be provided")
	}
	if len(flows) < 1 {
		return nil, errors.New("at least one OD flow must be provided")
	}
	if fleet == nil {
		return nil, errors.New("fleet composition is required")
	}
	if fleet.NumBuses() < len(routes) {
		return nil, errors.New("at least one bus must be provided for each route")
	}

	names := map[string]bool{}
	for _, r := range routes {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if names[r.Name] {
			return nil, fmt.Errorf("all routes must have a unique name: %q repeats", r.Name)
		}
		names[r.Name] = true
	}

	for _, od := range flows {
		if err := od.Validate(); err != nil {
			return nil, err
		}
		from, to := street.Node(od.Origin), street.Node(od.Destination)
		if from == nil || to == nil || !topo.PathExistsIn(street, from, to) {
			return nil, fmt.Errorf("no path between OD pair %d and %d", od.Origin, od.Destination)
		}
	}

	for _, r := range routes {
		for i := 1; i < len(r.Nodes); i++ {
			if !street.HasEdgeBetween(r.Nodes[i-1], r.Nodes[i]) {
				return nil, fmt.Errorf("no edge between nodes %d and %d in route %s", r.Nodes[i-1], r.Nodes[i], r.Name)
			}
		}
	}

	edges := street.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		if w := e.Weight(); w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("edge %d-%d has invalid weight %v", e.From().ID(), e.To().ID(), w)
		}
	}

	return &Design{
		Routes:    routes,
		ODFlows:   flows,
		Fleet:     fleet,
		Street:    street,
		WalkSpeed: DefaultWalkSpeed,
	}, nil
}

// DemandProfileName names the OD demand, e.g. demand_1_8_190__2_6_10.
func (d *Design) DemandProfileName() string {
	parts := make([]string, len(d.ODFlows))
	for i, od := range d.ODFlows {
		parts[i] = fmt.Sprintf("%d_%d_%d", od.Origin, od.Destination, od.Flow)
	}
	return "demand_" + strings.Join(parts, "__")
}

// Strategy produces a fleet assignment for a design.
type Strategy func(d *Design) (*FleetAssignment, error)

// AssignBuses runs strategy and records its assignment together with the
// resulting service graph. Every bus must be assigned.
func (d *Design) AssignBuses(strategy Strategy) error {
	a, err := strategy(d)
	if err != nil {
		return err
	}
	if a.composition != d.Fleet {
		return errors.New("assignment does not use the design's fleet")
	}
	if !a.AllAssigned() {
		return fmt.Errorf("not all buses have been assigned (%d of %d)", a.NumAssigned(), d.Fleet.NumBuses())
	}
	for i := range d.Fleet.Fleet {
		if d.route(a.RouteOf(i)) == nil {
			return fmt.Errorf("bus %d is assigned to unknown route %q", i, a.RouteOf(i))
		}
	}
	d.assignments = append(d.assignments, a)
	d.services = append(d.services, d.buildServiceGraph(a))
	return nil
}

// Assignments returns the recorded assignments in order.
func (d *Design) Assignments() []*FleetAssignment {
	return append([]*FleetAssignment(nil), d.assignments...)
}

// RemoveAssignment drops the i-th assignment.
func (d *Design) RemoveAssignment(i int) error {
	if i < 0 || i >= len(d.assignments) {
		return fmt.Errorf("no assignment %d", i)
	}
	d.assignments = append(d.assignments[:i], d.assignments[i+1:]...)
	d.services = append(d.services[:i], d.services[i+1:]...)
	return nil
}

func (d *Design) RemoveAllAssignments() {
	d.assignments = nil
	d.services = nil
}

func (d *Design) route(name string) *Route {
	for i := range d.Routes {
		if d.Routes[i].Name == name {
			return &d.Routes[i]
		}
	}
	return nil
}

type serviceEdge struct {
	weight     float64
	kind       string
	route      string
	discomfort int
}

// serviceGraph is a directed graph of walk and bus edges. Only the fastest
// edge per node pair is kept.
type serviceGraph struct {
	g     *simple.WeightedDirectedGraph
	edges map[[2]int64]serviceEdge
}

func (s *serviceGraph) add(u, v int64, e serviceEdge) {
	key := [2]int64{u, v}
	if cur, ok := s.edges[key]; ok && cur.weight <= e.weight {
		return
	}
	s.edges[key] = e
	s.g.SetWeightedEdge(s.g.NewWeightedEdge(simple.Node(u), simple.Node(v), e.weight))
}

func (d *Design) buildServiceGraph(a *FleetAssignment) *serviceGraph {
	s := &serviceGraph{
		g:     simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		edges: map[[2]int64]serviceEdge{},
	}
	walk := d.WalkSpeed
	if walk <= 0 {
		walk = DefaultWalkSpeed
	}

	nodes := d.Street.Nodes()
	for nodes.Next() {
		s.g.AddNode(nodes.Node())
	}
	edges := d.Street.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		u, v := e.From().ID(), e.To().ID()
		w := serviceEdge{weight: e.Weight() / walk, kind: EdgeWalk}
		s.add(u, v, w)
		s.add(v, u, w)
	}

	for _, r := range d.Routes {
		for i, bus := range d.Fleet.Fleet {
			if a.RouteOf(i) != r.Name {
				continue
			}
			for k := 1; k < len(r.Nodes); k++ {
				u, v := r.Nodes[k-1], r.Nodes[k]
				dist, _ := d.Street.Weight(u, v)
				s.add(u, v, serviceEdge{
					weight:     dist / bus.AvgSpeed,
					kind:       EdgeBus,
					route:      r.Name,
					discomfort: bus.DiscomfortLevel,
				})
			}
		}
	}
	return s
}

// FlowMetrics describes the shortest trip for one OD pair.
type FlowMetrics struct {
	Path              []int64 `json:"path"`
	TravelTime        float64 `json:"travel_time"`
	AverageTravelTime float64 `json:"average_travel_time"` // per hop
	Hops              int     `json:"number_of_hops"`
	Services          int     `json:"number_of_services"`
	Transfers         int     `json:"transfers"`
	AverageDiscomfort float64 `json:"average_discomfort"` // over bus segments
}

// AnalyzeFlow finds the fastest trip for od on the service graph of
// assignment i.
func (d *Design) AnalyzeFlow(i int, od ODFlow) (FlowMetrics, error) {
	if i < 0 || i >= len(d.services) {
		return FlowMetrics{}, fmt.Errorf("no assignment %d", i)
	}
	s := d.services[i]
	from := s.g.Node(od.Origin)
	if from == nil || s.g.Node(od.Destination) == nil {
		return FlowMetrics{}, fmt.Errorf("OD pair %d-%d is not in the network", od.Origin, od.Destination)
	}

	nodes, total := path.DijkstraFrom(from, s.g).To(od.Destination)
	if len(nodes) == 0 || math.IsInf(total, 1) {
		return FlowMetrics{}, fmt.Errorf("no path between OD pair %d and %d", od.Origin, od.Destination)
	}
	return s.metrics(nodes, total), nil
}

func (s *serviceGraph) metrics(nodes []graph.Node, total float64) FlowMetrics {
	m := FlowMetrics{TravelTime: total, Path: make([]int64, len(nodes))}
	for k, n := range nodes {
		m.Path[k] = n.ID()
	}
	m.Hops = len(nodes) - 1

	routes := map[string]bool{}
	var prev string
	var discomfort, segments int
	for k := 1; k < len(m.Path); k++ {
		e := s.edges[[2]int64{m.Path[k-1], m.Path[k]}]
		if e.kind != EdgeBus {
			continue
		}
		routes[e.route] = true
		discomfort += e.discomfort
		if prev != "" && prev != e.route {
			m.Transfers++
		}
		prev = e.route
		segments++
	}
	m.Services = len(routes)
	if m.Hops > 0 {
		m.AverageTravelTime = total / float64(m.Hops)
	}
	if segments > 0 {
		m.AverageDiscomfort = float64(discomfort) / float64(segments)
	}
	return m
}

// Evaluation holds the flow-weighted metrics of one assignment.
type Evaluation struct {
	Assignment      int            `json:"assignment"`
	AvgTravelTime   float64        `json:"avg_travel_time"`
	AvgDiscomfort   float64        `json:"avg_discomfort"`
	AvgTransfers    float64        `json:"avg_transfers"`
	AvgHops         float64        `json:"avg_hops"`
	Emissions       float64        `json:"emissions"`
	CapitalCost     int            `json:"capital_cost"`
	OperationalCost int            `json:"operational_cost"`
	Flows           []FlowMetrics  `json:"flows"`
	BusesPerRoute   map[string]int `json:"buses_per_route"`
	Satisfied       map[string]int `json:"satisfied_demand"`
}

// Evaluate computes flow-weighted averages for assignment i. With zero total
// flow the averages are zero.
func (d *Design) Evaluate(i int) (Evaluation, error) {
	if i < 0 || i >= len(d.assignments) {
		return Evaluation{}, fmt.Errorf("no assignment %d", i)
	}
	a := d.assignments[i]
	ev := Evaluation{
		Assignment:    i,
		Emissions:     a.TotalEmissions(),
		CapitalCost:   a.composition.TotalCapitalCost(),
		BusesPerRoute: map[string]int{},
		Satisfied:     map[string]int{},
	}

	var flow float64
	for _, od := range d.ODFlows {
		m, err := d.AnalyzeFlow(i, od)
		if err != nil {
			return Evaluation{}, err
		}
		ev.Flows = append(ev.Flows, m)
		w := float64(od.Flow)
		flow += w
		ev.AvgTravelTime += m.AverageTravelTime * w
		ev.AvgDiscomfort += m.AverageDiscomfort * w
		ev.AvgTransfers += float64(m.Transfers) * w
		ev.AvgHops += float64(m.Hops) * w
	}
	if flow > 0 {
		ev.AvgTravelTime /= flow
		ev.AvgDiscomfort /= flow
		ev.AvgTransfers /= flow
		ev.AvgHops /= flow
	}

	for _, r := range d.Routes {
		ev.OperationalCost += a.OperationalCostForRoute(r.Name)
		ev.BusesPerRoute[r.Name] = a.BusesOnRoute(r.Name)
		for _, od := range d.ODFlows {
			if r.Serves(od.Origin, od.Destination) {
				ev.Satisfied[odKey(od)] += a.CapacityForRoute(r.Name)
			}
		}
	}
	for _, od := range d.ODFlows {
		if _, ok := ev.Satisfied[odKey(od)]; !ok {
			ev.Satisfied[odKey(od)] = 0
		}
	}
	return ev, nil
}

func odKey(od ODFlow) string {
	return fmt.Sprintf("%d_%d", od.Origin, od.Destination)
}

// TotalEmissions sums emissions across all assignments.
func (d *Design) TotalEmissions() float64 {
	var total float64
	for _, a := range d.assignments {
		total += a.TotalEmissions()
	}
	return total
}

// TotalCapitalCost sums the fleet procurement cost of every assignment.
func (d *Design) TotalCapitalCost() int {
	total := 0
	for _, a := range d.assignments {
		total += a.composition.TotalCapitalCost()
	}
	return total
}

// TotalOperationalCost sums the operational cost of assigned buses across all
// assignments and routes.
func (d *Design) TotalOperationalCost() int {
	total := 0
	for _, a := range d.assignments {
		for _, r := range d.Routes {
			total += a.OperationalCostForRoute(r.Name)
		}
	}
	return total
}

// SatisfiedDemand sums, per OD flow, the capacity of routes serving both ends
// across all assignments.
func (d *Design) SatisfiedDemand() map[ODFlow]int {
	out := make(map[ODFlow]int, len(d.ODFlows))
	for _, od := range d.ODFlows {
		out[od] = 0
	}
	for _, a := range d.assignments {
		for _, r := range d.Routes {
			for _, od := range d.ODFlows {
				if r.Serves(od.Origin, od.Destination) {
					out[od] += a.CapacityForRoute(r.Name)
				}
			}
		}
	}
	return out
}

// BusesOnRoute counts the buses assigned to route across all assignments.
func (d *Design) BusesOnRoute(route string) int {
	n := 0
	for _, a := range d.assignments {
		n += a.BusesOnRoute(route)
	}
	return n
}

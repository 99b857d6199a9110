// Package network evaluates bus service network designs over a street graph:
// routes, a fleet, and origin-destination demand are combined into a service
// graph whose shortest paths yield travel time, transfer and discomfort metrics.
package network

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultOperatorSalary is the annual salary of one bus operator.
const DefaultOperatorSalary = 45028

// Bus is one vehicle type.
type Bus struct {
	Name                  string  `yaml:"name" json:"name"`
	Capacity              int     `yaml:"capacity" json:"capacity"`
	PerMileEmissions      float64 `yaml:"per_mile_emissions" json:"per_mile_emissions"`
	ProcurementPrice      int     `yaml:"procurement_price" json:"procurement_price"`
	AnnualMaintenanceCost int     `yaml:"annual_maintenance_cost" json:"annual_maintenance_cost"`
	DiscomfortLevel       int     `yaml:"discomfort_level" json:"discomfort_level"`
	AvgSpeed              float64 `yaml:"avg_speed" json:"avg_speed"`
}

// LoadBusCatalog reads bus types keyed by name from a YAML or JSON file.
func LoadBusCatalog(path string) (map[string]Bus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]Bus
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse bus catalog %s: %w", path, err)
	}
	out := make(map[string]Bus, len(raw))
	for name, b := range raw {
		b.Name = name
		if b.AvgSpeed <= 0 {
			return nil, fmt.Errorf("bus %q: avg_speed must be positive", name)
		}
		out[name] = b
	}
	return out, nil
}

// Route is an ordered sequence of street nodes served by buses.
type Route struct {
	Name  string  `yaml:"name" json:"name"`
	Nodes []int64 `yaml:"nodes" json:"nodes"`
}

func NewRoute(name string, nodes ...int64) (Route, error) {
	r := Route{Name: name, Nodes: nodes}
	if err := r.Validate(); err != nil {
		return Route{}, err
	}
	return r, nil
}

func (r Route) Validate() error {
	if len(r.Nodes) < 2 {
		return fmt.Errorf("route %q must contain at least 2 nodes", r.Name)
	}
	return nil
}

// Len is the number of hops.
func (r Route) Len() int { return len(r.Nodes) - 1 }

// Serves reports whether both nodes lie on the route.
func (r Route) Serves(a, b int64) bool {
	var hasA, hasB bool
	for _, n := range r.Nodes {
		hasA = hasA || n == a
		hasB = hasB || n == b
	}
	return hasA && hasB
}

// ODFlow is travel demand between two nodes.
type ODFlow struct {
	Origin      int64 `yaml:"origin" json:"origin"`
	Destination int64 `yaml:"destination" json:"destination"`
	Flow        int   `yaml:"flow" json:"flow"`
}

func NewODFlow(origin, destination int64, flow int) (ODFlow, error) {
	od := ODFlow{Origin: origin, Destination: destination, Flow: flow}
	if err := od.Validate(); err != nil {
		return ODFlow{}, err
	}
	return od, nil
}

func (od ODFlow) Validate() error {
	if od.Flow < 0 {
		return errors.New("flow must be non-negative")
	}
	if od.Origin == od.Destination {
		return errors.New("origin and destination must be different")
	}
	return nil
}

// Operator drives one bus.
type Operator struct {
	AnnualSalary int `yaml:"annual_salary" json:"annual_salary"`
}

func NewOperator(salary int) (Operator, error) {
	if salary < 0 {
		return Operator{}, errors.New("operator salary must be non-negative")
	}
	return Operator{AnnualSalary: salary}, nil
}

// FleetComposition is the set of buses and their operators.
type FleetComposition struct {
	Fleet     []Bus
	Operators []Operator
}

// NewFleetComposition pairs every bus with an operator. Nil operators default
// to one operator per bus at DefaultOperatorSalary.
func NewFleetComposition(fleet []Bus, operators []Operator) (*FleetComposition, error) {
	if len(fleet) < 1 {
		return nil, errors.New("fleet composition must include at least one bus")
	}
	if operators == nil {
		operators = make([]Operator, len(fleet))
		for i := range operators {
			operators[i] = Operator{AnnualSalary: DefaultOperatorSalary}
		}
	} else if len(operators) != len(fleet) {
		return nil, errors.New("each bus must have a corresponding operator")
	}
	return &FleetComposition{Fleet: fleet, Operators: operators}, nil
}

func (c *FleetComposition) NumBuses() int { return len(c.Fleet) }

func (c *FleetComposition) TotalCapacity() int {
	n := 0
	for _, b := range c.Fleet {
		n += b.Capacity
	}
	return n
}

func (c *FleetComposition) TotalCapitalCost() int {
	n := 0
	for _, b := range c.Fleet {
		n += b.ProcurementPrice
	}
	return n
}

func (c *FleetComposition) TotalOperationalCost() int {
	n := 0
	for i, b := range c.Fleet {
		n += b.AnnualMaintenanceCost + c.Operators[i].AnnualSalary
	}
	return n
}

// Counts returns the number of buses per type name in first-seen order.
func (c *FleetComposition) Counts() (names []string, counts []int) {
	idx := map[string]int{}
	for _, b := range c.Fleet {
		i, ok := idx[b.Name]
		if !ok {
			i = len(names)
			idx[b.Name] = i
			names = append(names, b.Name)
			counts = append(counts, 0)
		}
		counts[i]++
	}
	return names, counts
}

// FleetAssignment maps buses, by fleet index, to at most one route each.
type FleetAssignment struct {
	composition *FleetComposition
	routes      []string // route name per bus, "" when unassigned
}

func NewFleetAssignment(c *FleetComposition) *FleetAssignment {
	return &FleetAssignment{composition: c, routes: make([]string, len(c.Fleet))}
}

func (a *FleetAssignment) Composition() *FleetComposition { return a.composition }

// Assign puts bus on route.
func (a *FleetAssignment) Assign(bus int, route Route) error {
	if bus < 0 || bus >= len(a.routes) {
		return fmt.Errorf("bus %d is not in the fleet", bus)
	}
	if a.routes[bus] != "" {
		return fmt.Errorf("bus %d (%s) is already assigned to %s", bus, a.composition.Fleet[bus].Name, a.routes[bus])
	}
	if route.Name == "" {
		return errors.New("route name is required")
	}
	a.routes[bus] = route.Name
	return nil
}

// RouteOf returns the route name of bus, or "" when unassigned.
func (a *FleetAssignment) RouteOf(bus int) string {
	if bus < 0 || bus >= len(a.routes) {
		return ""
	}
	return a.routes[bus]
}

func (a *FleetAssignment) NumAssigned() int {
	n := 0
	for _, r := range a.routes {
		if r != "" {
			n++
		}
	}
	return n
}

// AllAssigned reports whether every bus has a route.
func (a *FleetAssignment) AllAssigned() bool {
	return a.NumAssigned() == len(a.routes)
}

func (a *FleetAssignment) sumFor(route string, f func(i int, b Bus) float64) float64 {
	var total float64
	for i, b := range a.composition.Fleet {
		if a.routes[i] != "" && a.routes[i] == route {
			total += f(i, b)
		}
	}
	return total
}

func (a *FleetAssignment) BusesOnRoute(route string) int {
	return int(a.sumFor(route, func(int, Bus) float64 { return 1 }))
}

func (a *FleetAssignment) CapacityForRoute(route string) int {
	return int(a.sumFor(route, func(_ int, b Bus) float64 { return float64(b.Capacity) }))
}

func (a *FleetAssignment) CapitalCostForRoute(route string) int {
	return int(a.sumFor(route, func(_ int, b Bus) float64 { return float64(b.ProcurementPrice) }))
}

// OperationalCostForRoute sums maintenance and operator salaries of the buses on route.
func (a *FleetAssignment) OperationalCostForRoute(route string) int {
	return int(a.sumFor(route, func(i int, b Bus) float64 {
		return float64(b.AnnualMaintenanceCost + a.composition.Operators[i].AnnualSalary)
	}))
}

func (a *FleetAssignment) EmissionsForRoute(route string) float64 {
	return a.sumFor(route, func(_ int, b Bus) float64 { return b.PerMileEmissions })
}

// TotalEmissions sums the per-mile emissions of every assigned bus.
func (a *FleetAssignment) TotalEmissions() float64 {
	var total float64
	for i, b := range a.composition.Fleet {
		if a.routes[i] != "" {
			total += b.PerMileEmissions
		}
	}
	return total
}

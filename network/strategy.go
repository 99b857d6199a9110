package network

import (
	"fmt"
	"sort"
)

// Strategies are the built-in assignment strategies by name.
var Strategies = map[string]Strategy{
	"round_robin":         RoundRobin,
	"longest_route_first": LongestRouteFirst,
}

// RoundRobin assigns bus i to route i mod len(routes).
func RoundRobin(d *Design) (*FleetAssignment, error) {
	a := NewFleetAssignment(d.Fleet)
	for i := range d.Fleet.Fleet {
		if err := a.Assign(i, d.Routes[i%len(d.Routes)]); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// LongestRouteFirst deals buses, largest capacity first, over routes ordered
// by hop count, longest first. Ties keep their original order.
func LongestRouteFirst(d *Design) (*FleetAssignment, error) {
	routes := append([]Route(nil), d.Routes...)
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Len() > routes[j].Len() })

	buses := make([]int, len(d.Fleet.Fleet))
	for i := range buses {
		buses[i] = i
	}
	sort.SliceStable(buses, func(i, j int) bool {
		return d.Fleet.Fleet[buses[i]].Capacity > d.Fleet.Fleet[buses[j]].Capacity
	})

	a := NewFleetAssignment(d.Fleet)
	for k, bus := range buses {
		if err := a.Assign(bus, routes[k%len(routes)]); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// StrategyByName looks up a built-in strategy. Empty selects round_robin.
func StrategyByName(name string) (Strategy, error) {
	if name == "" {
		return RoundRobin, nil
	}
	s, ok := Strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown assignment strategy %q", name)
	}
	return s, nil
}

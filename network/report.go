package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ReportEntry is one evaluated design as exchanged in JSON result lists.
type ReportEntry struct {
	FleetComposition []int   `json:"Fleet_composition"`
	AvgTravelTime    float64 `json:"Avg_tt"`
	Discomfort       float64 `json:"Discomfort"`
	Transfers        float64 `json:"Num_transfer"`
	Hops             float64 `json:"Num_hop"`
	Emissions        float64 `json:"Emission"`
	DemandProfile    string  `json:"Demand_profile,omitempty"`
}

// NewReportEntry summarizes assignment i of d.
func NewReportEntry(d *Design, i int) (ReportEntry, error) {
	ev, err := d.Evaluate(i)
	if err != nil {
		return ReportEntry{}, err
	}
	_, counts := d.Fleet.Counts()
	return ReportEntry{
		FleetComposition: counts,
		AvgTravelTime:    ev.AvgTravelTime,
		Discomfort:       ev.AvgDiscomfort,
		Transfers:        ev.AvgTransfers,
		Hops:             ev.AvgHops,
		Emissions:        ev.Emissions,
		DemandProfile:    d.DemandProfileName(),
	}, nil
}

// Implementation is one model in a design report.
type Implementation struct {
	FMax []string `yaml:"f_max"`
	RMin []string `yaml:"r_min"`
}

// Report is the design-implementation YAML document: functionality F,
// resources R, and one implementation per evaluated model.
type Report struct {
	F               []string                  `yaml:"F"`
	R               []string                  `yaml:"R"`
	Implementations map[string]Implementation `yaml:"implementations"`
}

const satisfiedDemand = "`satisfied_demand"

// header sets F and R for a fleet of n bus types.
func (r *Report) header(n int) {
	r.F = []string{satisfiedDemand}
	r.R = nil
	for i := 0; i < n; i++ {
		r.R = append(r.R, "car")
	}
	r.R = append(r.R, "s", "Reals", "Reals", "Reals", "kg/year")
}

func (r *Report) add(e ReportEntry) string {
	if r.Implementations == nil {
		r.Implementations = map[string]Implementation{}
	}
	name := "model" + strconv.Itoa(len(r.Implementations)+1)
	profile := e.DemandProfile
	if profile == "" {
		profile = "demand"
	}
	impl := Implementation{FMax: []string{satisfiedDemand + ": " + profile}}
	for _, n := range e.FleetComposition {
		impl.RMin = append(impl.RMin, fmt.Sprintf("%d car", n))
	}
	impl.RMin = append(impl.RMin,
		fmt.Sprintf("%v s", e.AvgTravelTime),
		fmt.Sprintf("%v Reals", e.Discomfort),
		fmt.Sprintf("%v Reals", e.Transfers),
		fmt.Sprintf("%v Reals", e.Hops),
		fmt.Sprintf("%v kg/year", e.Emissions),
	)
	r.Implementations[name] = impl
	return name
}

// LoadReport reads a report; a missing file yields an empty report.
func LoadReport(path string) (*Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &r, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}

// WriteReport appends e as the next modelN implementation in the YAML report
// at path. The F/R header is reset when overwrite is set or either is missing;
// existing implementations are kept.
func WriteReport(path string, e ReportEntry, overwrite bool) (string, error) {
	r, err := LoadReport(path)
	if err != nil {
		return "", err
	}
	if overwrite || len(r.F) == 0 || len(r.R) == 0 {
		r.header(len(e.FleetComposition))
	}
	name := r.add(e)

	data, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return name, nil
}

// ConvertResults appends every entry of a JSON result list to the YAML report.
// With overwrite the existing report is replaced.
func ConvertResults(jsonPath, yamlPath string, overwrite bool) (int, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, err
	}
	var entries []ReportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse results %s: %w", jsonPath, err)
	}
	if overwrite {
		if err := os.Remove(yamlPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
	}
	for i, e := range entries {
		if _, err := WriteReport(yamlPath, e, false); err != nil {
			return i, err
		}
	}
	return len(entries), nil
}

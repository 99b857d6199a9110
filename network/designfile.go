package network

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DesignFile is the YAML description of a design to evaluate.
type DesignFile struct {
	Grid struct {
		Rows int `yaml:"rows"`
		Cols int `yaml:"cols"`
	} `yaml:"grid"`
	WalkSpeed  float64        `yaml:"walkSpeed"`
	BusCatalog string         `yaml:"busCatalog"`
	Buses      map[string]Bus `yaml:"buses"`
	Fleet      []string       `yaml:"fleet"`
	Salaries   []int          `yaml:"salaries"`
	Routes     []Route        `yaml:"routes"`
	ODFlows    []ODFlow       `yaml:"odFlows"`
	Strategy   string         `yaml:"strategy"`

	dir string
}

// LoadDesignFile reads a design file. A relative busCatalog is resolved
// against the file's directory.
func LoadDesignFile(path string) (*DesignFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f DesignFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse design %s: %w", path, err)
	}
	f.dir = filepath.Dir(path)
	return &f, nil
}

// Build validates the file and returns the design with its strategy.
func (f *DesignFile) Build() (*Design, Strategy, error) {
	if f.Grid.Rows < 1 || f.Grid.Cols < 1 {
		return nil, nil, errors.New("grid rows and cols must be positive")
	}

	catalog := map[string]Bus{}
	if f.BusCatalog != "" {
		p := f.BusCatalog
		if !filepath.IsAbs(p) {
			p = filepath.Join(f.dir, p)
		}
		loaded, err := LoadBusCatalog(p)
		if err != nil {
			return nil, nil, err
		}
		catalog = loaded
	}
	for name, b := range f.Buses {
		if b.AvgSpeed <= 0 {
			return nil, nil, fmt.Errorf("bus %q: avg_speed must be positive", name)
		}
		b.Name = name
		catalog[name] = b
	}

	fleet := make([]Bus, 0, len(f.Fleet))
	for _, name := range f.Fleet {
		b, ok := catalog[name]
		if !ok {
			return nil, nil, fmt.Errorf("fleet bus %q is not in the bus catalog", name)
		}
		fleet = append(fleet, b)
	}

	var operators []Operator
	if len(f.Salaries) > 0 {
		for _, s := range f.Salaries {
			op, err := NewOperator(s)
			if err != nil {
				return nil, nil, err
			}
			operators = append(operators, op)
		}
	}
	composition, err := NewFleetComposition(fleet, operators)
	if err != nil {
		return nil, nil, err
	}

	d, err := NewDesign(f.Routes, f.ODFlows, composition, StreetGrid(f.Grid.Rows, f.Grid.Cols))
	if err != nil {
		return nil, nil, err
	}
	if f.WalkSpeed > 0 {
		d.WalkSpeed = f.WalkSpeed
	}

	strategy, err := StrategyByName(f.Strategy)
	if err != nil {
		return nil, nil, err
	}
	return d, strategy, nil
}

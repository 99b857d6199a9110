package network

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport_Appends(t *testing.T) {
	d := demoDesign(t)
	entry, err := NewReportEntry(d, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, entry.FleetComposition)
	assert.Equal(t, "demand_1_8_190__2_6_10", entry.DemandProfile)

	path := filepath.Join(t.TempDir(), "design.yml")
	name, err := WriteReport(path, entry, false)
	require.NoError(t, err)
	assert.Equal(t, "model1", name)
	name, err = WriteReport(path, entry, false)
	require.NoError(t, err)
	assert.Equal(t, "model2", name)

	r, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"`satisfied_demand"}, r.F)
	assert.Equal(t, []string{"car", "car", "s", "Reals", "Reals", "Reals", "kg/year"}, r.R)
	require.Len(t, r.Implementations, 2)

	m := r.Implementations["model1"]
	assert.Equal(t, []string{"`satisfied_demand: demand_1_8_190__2_6_10"}, m.FMax)
	require.Len(t, m.RMin, 7)
	assert.Equal(t, "1 car", m.RMin[0])
	assert.Equal(t, "3.05 Reals", m.RMin[5])
	assert.Equal(t, "0.0368 kg/year", m.RMin[6])
}

func TestWriteReport_OverwriteResetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "design.yml")
	require.NoError(t, os.WriteFile(path, []byte("F: [old]\nR: [old]\nimplementations:\n  model1:\n    f_max: [x]\n    r_min: [y]\n"), 0o644))

	entry := ReportEntry{FleetComposition: []int{2}, AvgTravelTime: 0.5, Hops: 2}
	name, err := WriteReport(path, entry, true)
	require.NoError(t, err)
	assert.Equal(t, "model2", name)

	r, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"car", "s", "Reals", "Reals", "Reals", "kg/year"}, r.R)
	assert.Equal(t, []string{"x"}, r.Implementations["model1"].FMax)
	assert.Equal(t, "2 car", r.Implementations["model2"].RMin[0])
	assert.Equal(t, "0.5 s", r.Implementations["model2"].RMin[1])
}

func TestWriteReport_InvalidExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "design.yml")
	require.NoError(t, os.WriteFile(path, []byte("F: [unclosed"), 0o644))
	_, err := WriteReport(path, ReportEntry{}, false)
	assert.Error(t, err)
}

func TestConvertResults(t *testing.T) {
	dir := t.TempDir()
	results := []ReportEntry{
		{FleetComposition: []int{1, 1}, AvgTravelTime: 0.1, Discomfort: 1, Emissions: 0.04},
		{FleetComposition: []int{2, 0}, AvgTravelTime: 0.2, Discomfort: 1.5, Transfers: 0.5, Hops: 3, Emissions: 0.03},
	}
	data, err := json.Marshal(results)
	require.NoError(t, err)
	jsonPath := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(jsonPath, data, 0o644))
	yamlPath := filepath.Join(dir, "design.yml")

	n, err := ConvertResults(jsonPath, yamlPath, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = ConvertResults(jsonPath, yamlPath, false)
	require.NoError(t, err)

	r, err := LoadReport(yamlPath)
	require.NoError(t, err)
	assert.Len(t, r.Implementations, 4)
	assert.Equal(t, "2 car", r.Implementations["model2"].RMin[0])
	assert.Equal(t, []string{"`satisfied_demand: demand"}, r.Implementations["model1"].FMax)

	_, err = ConvertResults(jsonPath, yamlPath, true)
	require.NoError(t, err)
	r, err = LoadReport(yamlPath)
	require.NoError(t, err)
	assert.Len(t, r.Implementations, 2)

	require.NoError(t, os.WriteFile(jsonPath, []byte("{"), 0o644))
	_, err = ConvertResults(jsonPath, yamlPath, false)
	assert.Error(t, err)
}

func TestReportEntry_JSONFieldNames(t *testing.T) {
	var e ReportEntry
	require.NoError(t, json.Unmarshal([]byte(`{"Fleet_composition":[3,1],"Avg_tt":0.2,"Discomfort":1.2,"Num_transfer":0.1,"Num_hop":4,"Emission":0.05}`), &e))
	assert.Equal(t, []int{3, 1}, e.FleetComposition)
	assert.Equal(t, 4.0, e.Hops)
	assert.Equal(t, 0.1, e.Transfers)
}

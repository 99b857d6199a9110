// Package catalog describes the external datasets kept in the data directory.
package catalog

import "sort"

// Dataset is a static description of one upstream dataset.
type Dataset struct {
	Name         string `yaml:"name" json:"name" validate:"required"`
	Source       string `yaml:"source" json:"source" validate:"required"`
	Vintage      string `yaml:"vintage" json:"vintage"`
	Granularity  string `yaml:"granularity" json:"granularity"`
	Link         string `yaml:"link" json:"link" validate:"omitempty,url"`
	MetadataLink string `yaml:"metadataLink" json:"metadataLink"`
	Notes        string `yaml:"notes" json:"notes"`
}

// Default returns the datasets the analysis depends on.
func Default() []Dataset {
	return []Dataset{
		{
			Name:        "GTFS",
			Source:      "transit.land",
			Vintage:     "latest and oldest available feed versions",
			Granularity: "route / trip / stop",
			Link:        "https://transit.land",
			Notes:       "Archived versions are capped at 12 versions back from the latest.",
		},
		{
			Name:        "LODES",
			Source:      "U.S. Census Bureau, LEHD",
			Vintage:     "2022, 2021",
			Granularity: "census block (origin-destination pairs)",
			Link:        "https://lehd.ces.census.gov/data/",
			Notes:       "Job type JT00, main part (in-state residence and workplace).",
		},
		{
			Name:         "ACS",
			Source:       "U.S. Census Bureau via Social Explorer",
			Vintage:      "2019-2023 5-year estimates",
			Granularity:  "block group",
			Link:         "https://www.socialexplorer.com/explore-tables",
			MetadataLink: "socialexplorer.md",
			Notes:        "Exported manually from the Social Explorer report viewer.",
		},
	}
}

// Merge overlays extra onto base by dataset name. Entries only in extra are
// appended in name order.
func Merge(base, extra []Dataset) []Dataset {
	out := make([]Dataset, len(base))
	copy(out, base)

	pos := make(map[string]int, len(out))
	for i, d := range out {
		pos[d.Name] = i
	}

	var added []Dataset
	for _, d := range extra {
		if i, ok := pos[d.Name]; ok {
			out[i] = overlay(out[i], d)
			continue
		}
		added = append(added, d)
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Name < added[j].Name })
	return append(out, added...)
}

func overlay(base, d Dataset) Dataset {
	if d.Source != "" {
		base.Source = d.Source
	}
	if d.Vintage != "" {
		base.Vintage = d.Vintage
	}
	if d.Granularity != "" {
		base.Granularity = d.Granularity
	}
	if d.Link != "" {
		base.Link = d.Link
	}
	if d.MetadataLink != "" {
		base.MetadataLink = d.MetadataLink
	}
	if d.Notes != "" {
		base.Notes = d.Notes
	}
	return base
}

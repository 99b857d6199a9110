package catalog

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/theoremus-urban-solutions/transitdata/store"
)

var readmeTmpl = template.Must(template.New("readme").Funcs(template.FuncMap{
	"link":   markdownLink,
	"size":   humanSize,
	"date":   func(t time.Time) string { return t.UTC().Format("2006-01-02") },
	"detail": detail,
}).Parse(`# Data

This directory holds external datasets used by the analysis. Files are
refreshed by transitdata; do not edit them by hand.

| Dataset | Source | Vintage | Granularity | Link |
|---|---|---|---|---|
{{- range .Datasets}}
| {{.Name}} | {{.Source}} | {{.Vintage}} | {{.Granularity}} | {{link .Link .MetadataLink}} |
{{- end}}
{{range .Datasets}}{{if .Notes}}
**{{.Name}}.** {{.Notes}}
{{end}}{{end}}
{{- if .Artifacts}}
## Files

| File | Dataset | Detail | Fetched | Size |
|---|---|---|---|---|
{{- range .Artifacts}}
| ` + "`{{.Key}}`" + ` | {{.Dataset}} | {{detail .}} | {{if not .FetchedAt.IsZero}}{{date .FetchedAt}}{{else}}{{date .StoredAt}}{{end}} | {{size .Size}} |
{{- end}}
{{end}}`))

type readmeData struct {
	Datasets  []Dataset
	Artifacts []store.Artifact
}

// RenderReadme writes the data-directory README: a dataset table followed by
// the stored files.
func RenderReadme(w io.Writer, datasets []Dataset, artifacts []store.Artifact) error {
	return readmeTmpl.Execute(w, readmeData{Datasets: datasets, Artifacts: artifacts})
}

func markdownLink(link, metadata string) string {
	var parts []string
	if link != "" {
		parts = append(parts, fmt.Sprintf("[%s](%s)", hostOf(link), link))
	}
	if metadata != "" {
		parts = append(parts, fmt.Sprintf("[metadata](%s)", metadata))
	}
	return strings.Join(parts, ", ")
}

func hostOf(link string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(link, "https://"), "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}

func detail(a store.Artifact) string {
	switch {
	case a.GTFS != nil:
		d := fmt.Sprintf("%s %s", a.Feed, a.Slot)
		if a.GTFS.ServiceStart != "" {
			d += fmt.Sprintf(", service %s-%s", a.GTFS.ServiceStart, a.GTFS.ServiceEnd)
		}
		return d + fmt.Sprintf(", %d routes, sha1 %s", a.GTFS.Routes, shorten(a.SHA1, 8))
	case a.Feed != "":
		return strings.TrimSpace(a.Feed + " " + a.Slot)
	case a.Attributes["state"] != "":
		return fmt.Sprintf("%s %s", strings.ToUpper(a.Attributes["state"]), a.Attributes["year"])
	}
	return ""
}

func shorten(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

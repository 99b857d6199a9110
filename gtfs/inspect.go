package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
)

// ErrMissingFile is returned when a required GTFS file is absent.
var ErrMissingFile = errors.New("required GTFS file missing")

var requiredFiles = []string{"agency.txt", "routes.txt", "trips.txt", "stops.txt", "stop_times.txt"}

// Summary describes the contents of a GTFS archive.
type Summary struct {
	AgencyID       string     `yaml:"agency_id,omitempty" json:"agency_id,omitempty"`
	AgencyName     string     `yaml:"agency_name,omitempty" json:"agency_name,omitempty"`
	AgencyTimezone string     `yaml:"agency_timezone,omitempty" json:"agency_timezone,omitempty"`
	Agencies       int        `yaml:"agencies" json:"agencies"`
	Routes         int        `yaml:"routes" json:"routes"`
	Trips          int        `yaml:"trips" json:"trips"`
	Stops          int        `yaml:"stops" json:"stops"`
	StopTimes      int        `yaml:"stop_times" json:"stop_times"`
	Shapes         int        `yaml:"shapes" json:"shapes"`
	ShapeKM        float64    `yaml:"shape_km" json:"shape_km"`
	ServiceStart   string     `yaml:"service_start,omitempty" json:"service_start,omitempty"` // YYYYMMDD
	ServiceEnd     string     `yaml:"service_end,omitempty" json:"service_end,omitempty"`     // YYYYMMDD
	FeedVersion    string     `yaml:"feed_version,omitempty" json:"feed_version,omitempty"`
	FeedPublisher  string     `yaml:"feed_publisher,omitempty" json:"feed_publisher,omitempty"`
	Bounds         [4]float64 `yaml:"bounds,flow" json:"bounds"` // min lon, min lat, max lon, max lat
}

// Inspect opens the GTFS zip at path and summarizes it.
func Inspect(path string) (*Summary, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open gtfs archive %s: %w", path, err)
	}
	defer zr.Close()
	return inspectFiles(zr.File)
}

// InspectReader summarizes a GTFS zip available through r.
func InspectReader(r io.ReaderAt, size int64) (*Summary, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open gtfs archive: %w", err)
	}
	return inspectFiles(zr.File)
}

type inspector struct {
	s           Summary
	dateMin     string
	dateMax     string
	feedStart   string
	feedEnd     string
	haveBounds  bool
	shapePoints map[string][]shapePoint
}

type shapePoint struct {
	lon, lat float64
	seq      int
}

func inspectFiles(files []*zip.File) (*Summary, error) {
	byName := map[string]*zip.File{}
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		// feeds zipped with their folder keep files one level down
		name := strings.ToLower(path.Base(f.Name))
		if _, dup := byName[name]; !dup {
			byName[name] = f
		}
	}

	for _, name := range requiredFiles {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, name)
		}
	}

	in := &inspector{shapePoints: map[string][]shapePoint{}}
	for _, name := range []string{"agency.txt", "routes.txt", "trips.txt", "stops.txt", "stop_times.txt", "calendar.txt", "calendar_dates.txt", "feed_info.txt", "shapes.txt"} {
		f, ok := byName[name]
		if !ok {
			continue
		}
		if err := in.consumeCSV(name, f); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
	in.finish()
	return &in.s, nil
}

func (in *inspector) consumeCSV(name string, f *zip.File) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1
	csvr.ReuseRecord = true
	csvr.LazyQuotes = true

	head, err := csvr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	cols := make(map[string]int, len(head))
	for i, h := range head {
		h = strings.TrimPrefix(h, "\ufeff")
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idx := func(col string) int {
		if i, ok := cols[col]; ok {
			return i
		}
		return -1
	}
	field := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	row := 0
	each := func(fn func(rec []string)) error {
		for {
			rec, err := csvr.Read()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("row %d: %w", row+2, err)
			}
			row++
			fn(rec)
		}
	}

	switch name {
	case "agency.txt":
		agID, agName, agTZ := idx("agency_id"), idx("agency_name"), idx("agency_timezone")
		return each(func(rec []string) {
			if in.s.Agencies == 0 {
				in.s.AgencyID = field(rec, agID)
				in.s.AgencyName = field(rec, agName)
				in.s.AgencyTimezone = field(rec, agTZ)
			}
			in.s.Agencies++
		})
	case "routes.txt":
		return each(func([]string) { in.s.Routes++ })
	case "trips.txt":
		return each(func([]string) { in.s.Trips++ })
	case "stop_times.txt":
		return each(func([]string) { in.s.StopTimes++ })
	case "stops.txt":
		sLat, sLon := idx("stop_lat"), idx("stop_lon")
		return each(func(rec []string) {
			in.s.Stops++
			lat, errLat := strconv.ParseFloat(field(rec, sLat), 64)
			lon, errLon := strconv.ParseFloat(field(rec, sLon), 64)
			if errLat != nil || errLon != nil || (lat == 0 && lon == 0) {
				return
			}
			in.extendBounds(lon, lat)
		})
	case "calendar.txt":
		start, end := idx("start_date"), idx("end_date")
		return each(func(rec []string) {
			in.observeDate(field(rec, start))
			in.observeDate(field(rec, end))
		})
	case "calendar_dates.txt":
		date, exType := idx("date"), idx("exception_type")
		return each(func(rec []string) {
			// removed service days do not extend the window
			if field(rec, exType) == "2" {
				return
			}
			in.observeDate(field(rec, date))
		})
	case "feed_info.txt":
		pub, ver, start, end := idx("feed_publisher_name"), idx("feed_version"), idx("feed_start_date"), idx("feed_end_date")
		return each(func(rec []string) {
			if row > 1 {
				return
			}
			in.s.FeedPublisher = field(rec, pub)
			in.s.FeedVersion = field(rec, ver)
			in.feedStart = field(rec, start)
			in.feedEnd = field(rec, end)
		})
	case "shapes.txt":
		sh, latIdx, lonIdx, seqIdx := idx("shape_id"), idx("shape_pt_lat"), idx("shape_pt_lon"), idx("shape_pt_sequence")
		if sh < 0 || latIdx < 0 || lonIdx < 0 || seqIdx < 0 {
			return nil
		}
		return each(func(rec []string) {
			lat, _ := strconv.ParseFloat(field(rec, latIdx), 64)
			lon, _ := strconv.ParseFloat(field(rec, lonIdx), 64)
			seq, _ := strconv.Atoi(field(rec, seqIdx))
			id := field(rec, sh)
			in.shapePoints[id] = append(in.shapePoints[id], shapePoint{lon, lat, seq})
		})
	}
	return nil
}

func (in *inspector) observeDate(d string) {
	if !validDate(d) {
		return
	}
	if in.dateMin == "" || d < in.dateMin {
		in.dateMin = d
	}
	if d > in.dateMax {
		in.dateMax = d
	}
}

func (in *inspector) extendBounds(lon, lat float64) {
	b := &in.s.Bounds
	if !in.haveBounds {
		*b = [4]float64{lon, lat, lon, lat}
		in.haveBounds = true
		return
	}
	b[0] = math.Min(b[0], lon)
	b[1] = math.Min(b[1], lat)
	b[2] = math.Max(b[2], lon)
	b[3] = math.Max(b[3], lat)
}

func (in *inspector) finish() {
	in.s.ServiceStart, in.s.ServiceEnd = in.dateMin, in.dateMax
	if in.s.ServiceStart == "" && validDate(in.feedStart) {
		in.s.ServiceStart = in.feedStart
	}
	if in.s.ServiceEnd == "" && validDate(in.feedEnd) {
		in.s.ServiceEnd = in.feedEnd
	}

	in.s.Shapes = len(in.shapePoints)
	total := 0.0
	for _, pts := range in.shapePoints {
		sort.Slice(pts, func(i, j int) bool { return pts[i].seq < pts[j].seq })
		for i := 1; i < len(pts); i++ {
			total += segmentKM(pts[i-1], pts[i])
		}
	}
	in.s.ShapeKM = math.Round(total*1000) / 1000
}

func validDate(d string) bool {
	if len(d) != 8 {
		return false
	}
	_, err := strconv.Atoi(d)
	return err == nil
}

const earthRadiusKM = 6371.0

// segmentKM is the great-circle length between two shape points.
func segmentKM(a, b shapePoint) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	sinLat := math.Sin(rad(b.lat-a.lat) / 2)
	sinLon := math.Sin(rad(b.lon-a.lon) / 2)
	h := sinLat*sinLat + math.Cos(rad(a.lat))*math.Cos(rad(b.lat))*sinLon*sinLon
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Package testutil builds fixtures shared by package tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"sort"
	"testing"
)

// MinimalFeed returns the files of a small valid GTFS feed.
func MinimalFeed() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"MWRTA,MetroWest Regional Transit Authority,https://www.mwrta.com,America/New_York\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_type\n" +
			"1,MWRTA,1,3\n" +
			"2,MWRTA,2,3\n",
		"trips.txt": "route_id,service_id,trip_id,shape_id\n" +
			"1,WK,t1,s1\n" +
			"1,WK,t2,s1\n" +
			"2,WK,t3,\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"A,Framingham,42.2793,-71.4162\n" +
			"B,Natick,42.2834,-71.3495\n" +
			"C,Wellesley,42.2968,-71.2924\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"t1,08:00:00,08:00:00,A,1\n" +
			"t1,08:10:00,08:10:00,B,2\n" +
			"t2,09:00:00,09:00:00,A,1\n" +
			"t2,09:10:00,09:10:00,B,2\n" +
			"t3,10:00:00,10:00:00,B,1\n" +
			"t3,10:15:00,10:15:00,C,2\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WK,1,1,1,1,1,0,0,20250106,20250627\n",
		"calendar_dates.txt": "service_id,date,exception_type\n" +
			"WK,20250704,2\n" +
			"WK,20250705,1\n",
		"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
			"s1,42.2834,-71.3495,2\n" +
			"s1,42.2793,-71.4162,1\n",
		"feed_info.txt": "feed_publisher_name,feed_publisher_url,feed_lang,feed_version\n" +
			"MWRTA,https://www.mwrta.com,en,2025-01-02\n",
	}
}

// BuildZip zips files under an optional folder prefix.
func BuildZip(t testing.TB, folder string, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(folder + name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

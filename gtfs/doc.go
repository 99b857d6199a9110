/*
Package gtfs inspects static GTFS archives.

Downloaded archives are opened and summarized before they are stored, so a
truncated download or an HTML error page saved as .zip never reaches the
data directory:

	summary, err := gtfs.Inspect("/tmp/gtfs-123.zip")
	if err != nil {
	    // not a usable GTFS feed
	}
	fmt.Println(summary.AgencyName, summary.Routes, summary.ServiceStart, summary.ServiceEnd)

Required files are agency.txt, routes.txt, trips.txt, stops.txt and
stop_times.txt. Archives whose files sit inside one top-level folder are
accepted. Rows are streamed, so large stop_times.txt files are not held in
memory.
*/
package gtfs

// Package config loads and validates config.yml.
//
// The file lists the transit.land feeds to archive with their retention
// policies, optional GTFS-Realtime endpoints, LODES state extracts, the
// storage target and the refresh schedule. A .env next to the file may
// carry API keys. Feeds are selected by name or onestop key.
package config

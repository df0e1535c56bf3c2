// Package storage writes crawl results to JSON export files.
//
// Each export is written to marathons_YYYYMMDD-HHMMSS.json in the data directory
// and copied to latest.json. Exports are artifacts for other tools; nothing in
// marathon-events reads them back. The default location is ~/.marathon-events/.
package storage

// Package cli implements the command-line interface for marathon-events.
//
// The cli package provides the Cobra-based CLI with commands to search, find,
// list upcoming marathons, export them as JSON or iCalendar, announce closing
// registrations, and serve the HTTP API. It maps result documents to exit codes:
// 0 on success, 1 on errors and 2 when no marathon data could be obtained.
package cli

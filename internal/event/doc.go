// Package event provides the marathon record type and its date helpers.
//
// Every date carried by a Record is stored in canonical YYYY-MM-DD form. Dates are
// normalized once, when a record is extracted from a detail page, so that the rest
// of the system can compare and filter them as plain strings. Derived values such as
// acceptance status and days-until-event are computed on demand against a caller
// supplied "today" and are never stored.
package event

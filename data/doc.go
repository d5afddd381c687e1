// Package data defines the Arrow schemas of the mzparquet layouts and the row
// builders that turn assembled spectra into Arrow records.
//
// Two layouts are provided:
//   - wide: one row per spectrum with nested precursor, peak and cvParam lists
//   - long: one row per peak with the spectrum fields repeated
package data

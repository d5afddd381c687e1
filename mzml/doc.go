// Package mzml provides streaming access to mzML mass-spectrometry files.
// This package implements:
// - Event-based XML reader that never materializes the document
// - Binary data array decoding (base64, zlib, MS-Numpress)
// - Spectrum assembly from reader events
package mzml

// Package kmi holds what the RMI open data clients share: the error types
// returned by every client and the transport options they accept.
//
// The clients themselves live in subpackages:
//
//   - observations: synoptic and automatic weather station data (WFS)
//   - forecast: ALARO gridded forecast fields sampled at a point (WMS)
//
// Both produce a table.Table indexed by UTC timestamp.
package kmi

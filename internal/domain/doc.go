// Package domain models incident reports and the canonical incidents they
// consolidate into.
//
// # Reports
//
// A [Report] is one ingested observation (a social post, a news headline, a
// manual submission) after structured extraction. Extraction fills the
// incident type, free-text location, an optional [Coordinate], a [Severity],
// a 0.0–1.0 extraction confidence, and a one-sentence summary. Verification
// later sets the 0–100 credibility score, the verified flag, and the citation
// list. The sentinel incident type [ErrorIncidentType] marks a failed
// extraction.
//
// # Incidents
//
// An [Incident] is the deduplicated record a set of matching reports
// consolidate into. Its id is assigned once, in creation order, starting at 1.
// Severity only escalates and confidence only rises (capped at 1.0). Reports
// keep arrival order and are never removed once merged.
//
// # Severity ladder
//
//	Low < Medium < High < Critical
//
// Unknown severity text parses as Low.
//
// # Distances
//
// Spatial matching uses a [Metric]. [Haversine] measures great-circle meters
// on a spherical Earth (radius 6,371,008.8 m). [Planar] measures Euclidean
// distance over raw degrees; it distorts east-west distance away from the
// equator and is kept only for compatibility with degree-based thresholds
// (0.01° ≈ 1.1 km north-south).
package domain

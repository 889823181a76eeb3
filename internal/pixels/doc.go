// Package pixels defines the observation model shared by every pipeline
// stage: a spectral reading for one ground sample of one mine on one date,
// enriched in place with an outlier label, a score, and the excavated flag.
package pixels

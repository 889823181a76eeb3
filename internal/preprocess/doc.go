// Package preprocess prepares fetched observations for scoring: it discards
// unusable rows, orders samples by mine, location, and date, and standardizes
// the spectral features.
package preprocess

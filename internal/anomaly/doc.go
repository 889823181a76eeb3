// Package anomaly scores spectral observations for outliers.
//
// Scorer is the replaceable capability: fit on a feature matrix, return a
// label and a score per row. IsolationForest is the shipped implementation;
// it is retrained on every call and is deterministic for a given seed and
// input order. Scoring always happens per mine.
package anomaly

// Package zones synthesizes protected vegetation and water zones from
// per-location spectral means. A location qualifies for the vegetation zone
// when its mean NDVI exceeds the upper percentile, and for the water zone when
// both its mean B8 and B11 fall below the lower percentile. Each qualifying
// location is buffered into a disc. A zone is the union of its discs: a point
// belongs to the zone when any disc contains it. The discs are not dissolved
// into one polygon, so GeoJSON exports carry them as a GeometryCollection.
package zones

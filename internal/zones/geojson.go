package zones

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders zones as GeoJSON features, one per zone, with the
// zone type, display label, point count, and thresholds as properties. Each
// feature's geometry is a GeometryCollection of the zone's buffer discs.
func FeatureCollection(zs []Zone) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, z := range zs {
		if z.Empty() {
			continue
		}
		f := geojson.NewFeature(z.Geometry())
		f.Properties["mine_id"] = z.MineID
		f.Properties["zone_type"] = string(z.Type)
		f.Properties["label"] = z.Type.Label()
		f.Properties["points"] = len(z.Centers)
		f.Properties["buffer_degrees"] = z.Radius
		f.Properties["thresholds"] = z.Threshold
		fc.Append(f)
	}
	return fc
}

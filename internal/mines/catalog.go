// Package mines loads mine concession boundaries from a GeoJSON catalog.
package mines

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"minewatch/internal/services"
)

// Mine is one concession boundary from the catalog.
type Mine struct {
	ID         int64
	Name       string
	State      string
	Geometry   orb.Geometry
	Properties map[string]any
}

// Bound returns the bounding box of the concession.
func (m Mine) Bound() orb.Bound {
	if m.Geometry == nil {
		return orb.Bound{}
	}
	return m.Geometry.Bound()
}

// Centroid returns the area-weighted centroid of polygonal geometries and the
// bound center otherwise.
func (m Mine) Centroid() orb.Point {
	switch g := m.Geometry.(type) {
	case orb.Polygon, orb.MultiPolygon:
		c, _ := planar.CentroidArea(g)
		return c
	case nil:
		return orb.Point{}
	default:
		return g.Bound().Center()
	}
}

// Feature renders the mine back into a GeoJSON feature.
func (m Mine) Feature() *geojson.Feature {
	f := geojson.NewFeature(m.Geometry)
	for k, v := range m.Properties {
		f.Properties[k] = v
	}
	f.Properties["mine_id"] = m.ID
	if m.Name != "" {
		f.Properties["name"] = m.Name
	}
	return f
}

// Catalog is an immutable, ID-indexed set of mines.
type Catalog struct {
	byID map[int64]Mine
	ids  []int64
}

// LoadCatalog reads a GeoJSON FeatureCollection from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "mines", "read catalog", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a FeatureCollection. Each feature needs a numeric
// mine_id (or id) property, or a numeric feature id, and a geometry.
func ParseCatalog(data []byte) (*Catalog, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "mines", "decode catalog", "", err)
	}
	mines := make([]Mine, 0, len(fc.Features))
	for i, f := range fc.Features {
		id, ok := featureID(f)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "mines", "decode catalog", fmt.Sprintf("feature %d has no mine_id", i), nil)
		}
		if f.Geometry == nil {
			return nil, services.Wrap(services.ErrValidation, "mines", "decode catalog", fmt.Sprintf("mine %d has no geometry", id), nil)
		}
		mines = append(mines, Mine{
			ID:         id,
			Name:       firstString(f.Properties, "name", "mine_name", "Name"),
			State:      firstString(f.Properties, "state", "State"),
			Geometry:   f.Geometry,
			Properties: map[string]any(f.Properties),
		})
	}
	return NewCatalog(mines...)
}

// NewCatalog indexes mines, rejecting duplicate IDs.
func NewCatalog(mines ...Mine) (*Catalog, error) {
	c := &Catalog{byID: make(map[int64]Mine, len(mines))}
	for _, m := range mines {
		if _, dup := c.byID[m.ID]; dup {
			return nil, services.Wrap(services.ErrValidation, "mines", "index catalog", fmt.Sprintf("duplicate mine_id %d", m.ID), nil)
		}
		c.byID[m.ID] = m
		c.ids = append(c.ids, m.ID)
	}
	slices.Sort(c.ids)
	return c, nil
}

// Lookup returns the mine with the given ID.
func (c *Catalog) Lookup(id int64) (Mine, error) {
	if c != nil {
		if m, ok := c.byID[id]; ok {
			return m, nil
		}
	}
	return Mine{}, services.Wrap(services.ErrNotFound, "mines", "lookup", fmt.Sprintf("mine %d", id), nil)
}

// All returns every mine ordered by ID.
func (c *Catalog) All() []Mine {
	if c == nil {
		return nil
	}
	out := make([]Mine, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id])
	}
	return out
}

// Len returns the number of mines.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

func featureID(f *geojson.Feature) (int64, bool) {
	for _, key := range []string{"mine_id", "id"} {
		if id, ok := asInt(f.Properties[key]); ok {
			return id, true
		}
	}
	return asInt(f.ID)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}

func firstString(props geojson.Properties, keys ...string) string {
	for _, k := range keys {
		if s, ok := props[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

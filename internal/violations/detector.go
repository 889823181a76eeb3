// Package violations intersects excavated observations with protected zones.
package violations

import (
	"cmp"
	"slices"

	"minewatch/internal/daterange"
	"minewatch/internal/pixels"
	"minewatch/internal/zones"
)

// DefaultPixelArea is the ground area in square metres of one 10 m sample.
const DefaultPixelArea = 100.0

// Record is one excavated sample falling inside one protected zone.
type Record struct {
	MineID   int64           `json:"mine_id"`
	Date     daterange.Date  `json:"date"`
	Location pixels.Location `json:"location"`
	ZoneType zones.Type      `json:"zone_type"`
	Area     float64         `json:"area_m2"`
	Score    float64         `json:"anomaly_score"`
}

// Key is the natural uniqueness key of a violation record.
type Key struct {
	MineID   int64
	Date     string
	Location pixels.Location
	ZoneType zones.Type
}

// Key returns the record's natural key.
func (r Record) Key() Key {
	return Key{MineID: r.MineID, Date: r.Date.String(), Location: r.Location, ZoneType: r.ZoneType}
}

// Detect returns a record for every excavated observation contained in a zone
// belonging to the same mine. An observation inside both zone types yields two
// records. Output is ordered by mine, date, zone type, then location.
func Detect(obs []pixels.Observation, zs []zones.Zone, pixelArea float64) []Record {
	if pixelArea <= 0 {
		pixelArea = DefaultPixelArea
	}
	byMine := make(map[int64][]zones.Zone)
	for _, z := range zs {
		if z.Empty() {
			continue
		}
		byMine[z.MineID] = append(byMine[z.MineID], z)
	}

	var out []Record
	seen := make(map[Key]struct{})
	for _, o := range obs {
		if !o.Excavated {
			continue
		}
		for _, z := range byMine[o.MineID] {
			if !z.Contains(o.Location) {
				continue
			}
			rec := Record{
				MineID:   o.MineID,
				Date:     o.Date,
				Location: o.Location,
				ZoneType: z.Type,
				Area:     pixelArea,
				Score:    o.Score,
			}
			if _, dup := seen[rec.Key()]; dup {
				continue
			}
			seen[rec.Key()] = struct{}{}
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, compare)
	return out
}

func compare(a, b Record) int {
	if c := cmp.Compare(a.MineID, b.MineID); c != 0 {
		return c
	}
	if c := a.Date.Time().Compare(b.Date.Time()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ZoneType, b.ZoneType); c != 0 {
		return c
	}
	return a.Location.Compare(b.Location)
}

// DailyArea is the summed violation area for one mine, date, and zone type.
type DailyArea struct {
	MineID   int64
	Date     daterange.Date
	ZoneType zones.Type
	Area     float64
	Pixels   int
}

// Aggregate sums record areas per mine, date, and zone type, in record order.
func Aggregate(records []Record) []DailyArea {
	type key struct {
		mine int64
		date string
		zone zones.Type
	}
	index := make(map[key]int)
	var out []DailyArea
	for _, r := range records {
		k := key{r.MineID, r.Date.String(), r.ZoneType}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, DailyArea{MineID: r.MineID, Date: r.Date, ZoneType: r.ZoneType})
		}
		out[i].Area += r.Area
		out[i].Pixels++
	}
	return out
}

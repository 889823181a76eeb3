// Package excavation turns raw per-sample anomaly labels into a persistence
// filtered excavated flag: a sample counts as excavated only when it and the
// previous sample at the same location were both anomalous.
package excavation

import (
	"minewatch/internal/pixels"
)

// Flag sorts obs by mine, location, and date, then marks an observation as
// excavated when the trailing two-sample sum of anomalous indicators at its
// location reaches 2. The first sample of each location is never flagged.
// It returns the number of flagged observations.
func Flag(obs []pixels.Observation) int {
	pixels.SortByLocationDate(obs)

	flagged := 0
	for i := range obs {
		obs[i].Excavated = false
		if i == 0 || !sameSeries(obs[i-1], obs[i]) {
			continue
		}
		if trailingSum(obs[i-1], obs[i]) >= 2 {
			obs[i].Excavated = true
			flagged++
		}
	}
	return flagged
}

func trailingSum(prev, cur pixels.Observation) int {
	sum := 0
	if prev.Anomalous() {
		sum++
	}
	if cur.Anomalous() {
		sum++
	}
	return sum
}

func sameSeries(a, b pixels.Observation) bool {
	return a.MineID == b.MineID && a.Location == b.Location
}

package daterange

// Resolve returns the sub-ranges of requested that are not covered by stored
// and are long enough to justify a fetch. stored may be nil when nothing has
// been persisted for the mine yet. The result holds at most two ranges, left
// gap first.
func Resolve(requested Range, stored *Range) []Range {
	return ResolveWindow(requested, stored, MinimumWindow)
}

// ResolveWindow is Resolve with an explicit minimum window in days.
func ResolveWindow(requested Range, stored *Range, minDays int) []Range {
	if !requested.Valid() {
		return nil
	}
	if minDays < 1 {
		minDays = 1
	}

	if stored == nil || !stored.Valid() {
		if requested.Days() < minDays {
			return nil
		}
		return []Range{requested}
	}

	if stored.Covers(requested) {
		return nil
	}

	var gaps []Range
	if requested.Start.Before(stored.Start) {
		left := Range{Start: requested.Start, End: minDate(requested.End, stored.Start.AddDays(-1))}
		if left.Days() >= minDays {
			gaps = append(gaps, left)
		}
	}
	if requested.End.After(stored.End) {
		right := Range{Start: maxDate(requested.Start, stored.End.AddDays(1)), End: requested.End}
		if right.Days() >= minDays {
			gaps = append(gaps, right)
		}
	}
	return gaps
}

func minDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func maxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

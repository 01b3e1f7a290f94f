package brs

import "sort"

// DefaultScanCap bounds per-poll scan diagnostics so a wide window cannot
// flood the job log.
const DefaultScanCap = 25

// ScanLine describes one examined slot, for diagnostics.
type ScanLine struct {
	Time     string
	Free     int
	Total    int
	Bookable bool
	Match    bool
}

// SelectCandidate scans the sheet's slots in ascending time order within
// [earliest, latest] inclusive and returns the first slot whose free-seat
// count satisfies the requirement: free >= need when acceptAtLeast,
// free == need otherwise. Earliest match wins; no further preference is
// applied. scan, when non-nil, receives at most scanCap lines (scanCap <= 0
// means DefaultScanCap).
func SelectCandidate(sheet *Sheet, earliest, latest string, need int, acceptAtLeast bool, scan func(ScanLine), scanCap int) (string, bool) {
	if sheet == nil || len(sheet.Times) == 0 {
		return "", false
	}
	eMin, err := ToMinutes(earliest)
	if err != nil {
		return "", false
	}
	lMin, err := ToMinutes(latest)
	if err != nil {
		return "", false
	}
	if scanCap <= 0 {
		scanCap = DefaultScanCap
	}

	times := make([]string, 0, len(sheet.Times))
	for hhmm := range sheet.Times {
		times = append(times, hhmm)
	}
	sort.Strings(times)

	shown := 0
	for _, hhmm := range times {
		tMin, err := ToMinutes(hhmm)
		if err != nil || tMin < eMin || tMin > lMin {
			continue
		}
		tee := sheet.Times[hhmm].TeeTime
		free, total := tee.FreeSeats()
		match := free == need
		if acceptAtLeast {
			match = free >= need
		}
		if scan != nil && shown < scanCap {
			bookable := tee != nil && tee.Bookable
			scan(ScanLine{Time: hhmm, Free: free, Total: total, Bookable: bookable, Match: match})
			shown++
		}
		if match {
			return hhmm, true
		}
	}
	return "", false
}

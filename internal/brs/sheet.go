package brs

import (
	"fmt"
	"strconv"
)

// Sheet is a point-in-time view of one course's tee sheet as served by the
// portal's JSON endpoint: a map of "HH:MM" to slot wrappers. Immutable once
// decoded; the cache replaces whole sheets, never mutates them.
type Sheet struct {
	Times map[string]SlotEnvelope `json:"times"`
}

type SlotEnvelope struct {
	TeeTime *TeeTime `json:"tee_time"`
}

// TeeTime is one bookable slot. The portal uses "participants" and
// "players" interchangeably across endpoints.
type TeeTime struct {
	Slots        int           `json:"slots"`
	Bookable     bool          `json:"bookable"`
	URL          string        `json:"url"`
	Participants []Participant `json:"participants"`
	Players      []Participant `json:"players"`
}

type Participant struct {
	Name string `json:"name"`
}

// Slot returns the tee time recorded for hhmm, or nil.
func (s *Sheet) Slot(hhmm string) *TeeTime {
	if s == nil || s.Times == nil {
		return nil
	}
	return s.Times[hhmm].TeeTime
}

func (t *TeeTime) participants() []Participant {
	if t == nil {
		return nil
	}
	if len(t.Participants) > 0 {
		return t.Participants
	}
	return t.Players
}

// PlayerNames returns the named participants, in sheet order.
func (t *TeeTime) PlayerNames() []string {
	var out []string
	for _, p := range t.participants() {
		out = append(out, p.Name)
	}
	return out
}

// FreeSeats computes (free, total) for a slot. Total falls back to the
// participant count and finally to the standard four-ball when the sheet
// doesn't declare a capacity. A seat counts as taken only when its
// participant carries a non-empty name.
func (t *TeeTime) FreeSeats() (free, total int) {
	parts := t.participants()
	total = 0
	if t != nil {
		total = t.Slots
	}
	if total == 0 {
		total = len(parts)
	}
	if total == 0 {
		total = 4
	}
	named := 0
	for _, p := range parts {
		if p.Name != "" {
			named++
		}
	}
	free = total - named
	if free < 0 {
		free = 0
	}
	return free, total
}

// ToMinutes converts "HH:MM" to minutes since midnight.
func ToMinutes(hhmm string) (int, error) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, fmt.Errorf("bad time %q", hhmm)
	}
	h, err := strconv.Atoi(hhmm[:2])
	if err != nil {
		return 0, fmt.Errorf("bad time %q", hhmm)
	}
	m, err := strconv.Atoi(hhmm[3:])
	if err != nil {
		return 0, fmt.Errorf("bad time %q", hhmm)
	}
	return h*60 + m, nil
}

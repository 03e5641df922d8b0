package schedule

import "time"

// CutoffLead is how long before a cycle date a deposit must already exist to
// participate in that cycle.
const CutoffLead = 24 * time.Hour

// IsEligible reports whether a position activated at activation participates
// in the cycle dated cycleDate. The comparison is strict: a deposit made
// exactly at the cutoff instant (cycleDate − 24h) does not participate.
func IsEligible(activation, cycleDate time.Time) bool {
	return activation.Before(cycleDate.Add(-CutoffLead))
}

// EligibleCount returns how many cycles in the schedule a position activated
// at activation participates in.
func (s Schedule) EligibleCount(activation time.Time) int {
	n := 0
	for _, e := range s.entries {
		if IsEligible(activation, e.Date) {
			n++
		}
	}
	return n
}

// NextEligible returns the first cycle whose cutoff has not yet passed at
// now. The second return is false when the program year is exhausted.
func (s Schedule) NextEligible(now time.Time) (Entry, bool) {
	for _, e := range s.entries {
		if IsEligible(now, e.Date) {
			return e, true
		}
	}
	return Entry{}, false
}

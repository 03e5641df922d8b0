// Package schedule holds the published cycle calendar for a program year and
// the eligibility rule that decides which cycles a deposit participates in.
package schedule

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the format cycle dates are published in (DD.MM.YYYY).
const DateLayout = "02.01.2006"

// Entry is one cycle in a program year.
type Entry struct {
	Number int
	Date   time.Time
}

// Schedule is an immutable, strictly ascending list of cycle dates.
//
// Construct one with New or Load; both reject out-of-order dates. Callers
// holding a raw []Entry built by other means are responsible for ordering:
// the eligibility functions assume it and do not re-check.
type Schedule struct {
	Year    int
	entries []Entry
}

// New builds a Schedule from dates in DateLayout form, numbering cycles from 1.
func New(year int, dates []string) (Schedule, error) {
	entries := make([]Entry, 0, len(dates))
	for i, ds := range dates {
		d, err := ParseDate(ds)
		if err != nil {
			return Schedule{}, fmt.Errorf("cycle %d: %w", i+1, err)
		}
		entries = append(entries, Entry{Number: i + 1, Date: d})
	}

	for i := 1; i < len(entries); i++ {
		if !entries[i-1].Date.Before(entries[i].Date) {
			return Schedule{}, fmt.Errorf("cycle dates must be strictly ascending: cycle %d (%s) is not after cycle %d (%s)",
				entries[i].Number, entries[i].Date.Format(DateLayout),
				entries[i-1].Number, entries[i-1].Date.Format(DateLayout))
		}
	}

	return Schedule{Year: year, entries: entries}, nil
}

// Entries returns a copy of the cycle list.
func (s Schedule) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of cycles in the program year.
func (s Schedule) Len() int {
	return len(s.entries)
}

// ParseDate parses a published cycle date (DD.MM.YYYY) as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cycle date %q: expected DD.MM.YYYY", s)
	}
	return t, nil
}

// scheduleFile is the on-disk YAML shape for externally supplied calendars.
type scheduleFile struct {
	Year   int      `yaml:"year" json:"year"`
	Cycles []string `yaml:"cycles" json:"cycles"`
}

// Load reads a program-year calendar from a YAML file.
func Load(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read schedule file: %w", err)
	}

	var sf scheduleFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return Schedule{}, fmt.Errorf("parse schedule file: %w", err)
	}
	if sf.Year == 0 {
		return Schedule{}, fmt.Errorf("schedule file %s: year is required", path)
	}
	if len(sf.Cycles) == 0 {
		return Schedule{}, fmt.Errorf("schedule file %s: cycles list is empty", path)
	}

	s, err := New(sf.Year, sf.Cycles)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule file %s: %w", path, err)
	}
	return s, nil
}

// Year2026 returns the published 2026 program-year calendar.
func Year2026() Schedule {
	s, err := New(2026, []string{
		"16.02.2026",
		"13.03.2026",
		"07.04.2026",
		"04.05.2026",
		"29.05.2026",
		"23.06.2026",
		"20.07.2026",
		"14.08.2026",
		"08.09.2026",
		"05.10.2026",
		"30.10.2026",
		"24.11.2026",
		"21.12.2026",
		"18.01.2027",
	})
	if err != nil {
		// The built-in calendar is a compile-time constant in all but syntax.
		panic(err)
	}
	return s
}

// Package conflict finds clinician visits whose time windows overlap on the
// same form date.
package conflict

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ehr/visitaudit/internal/domain/visit"
)

// Mode selects how a sorted group is scanned for overlaps.
type Mode string

const (
	// ModeAdjacent compares each visit only with the next one in start
	// order. This is the audit's historical behaviour and the default.
	ModeAdjacent Mode = "adjacent"
	// ModeOverlap compares every pair in a group, so a long visit that
	// covers several later ones flags all of them.
	ModeOverlap Mode = "overlap"
)

// ParseMode validates a mode name. Blank selects ModeAdjacent.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAdjacent:
		return ModeAdjacent, nil
	case ModeOverlap:
		return ModeOverlap, nil
	default:
		return "", fmt.Errorf("sweep mode must be %q or %q, got %q", ModeAdjacent, ModeOverlap, s)
	}
}

// Group holds one clinician's visits for one form date, sorted by start.
type Group struct {
	ClinicianID string
	FormDate    time.Time
	Visits      []visit.Record
}

// GroupVisits partitions records by (clinician, form date). Groups come back
// ordered by clinician then form date; visits inside a group are ordered by
// start, ties keeping input order.
func GroupVisits(records []visit.Record) []Group {
	type key struct {
		clinician string
		formDate  time.Time
	}

	index := map[key]int{}
	var groups []Group
	for _, r := range records {
		k := key{r.ClinicianID, r.FormDate}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{ClinicianID: r.ClinicianID, FormDate: r.FormDate})
		}
		groups[i].Visits = append(groups[i].Visits, r)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].ClinicianID != groups[j].ClinicianID {
			return groups[i].ClinicianID < groups[j].ClinicianID
		}
		return groups[i].FormDate.Before(groups[j].FormDate)
	})
	for _, g := range groups {
		v := g.Visits
		sort.SliceStable(v, func(i, j int) bool {
			return v[i].Start().Before(v[j].Start())
		})
	}
	return groups
}

// conflicts reports whether a, which starts no later than b, is still
// running when b starts. Touching endpoints conflict.
func conflicts(a, b visit.Record) bool {
	return !a.End().Before(b.Start())
}

// Scan returns the visits of a sorted group that take part in an overlap, in
// start order.
func Scan(g Group, mode Mode) []visit.Record {
	v := g.Visits
	if len(v) < 2 {
		return nil
	}

	flagged := make([]bool, len(v))
	for i := 0; i < len(v)-1; i++ {
		if conflicts(v[i], v[i+1]) {
			flagged[i] = true
			flagged[i+1] = true
		}
	}

	// Any earlier visit still running at v[j]'s start is a conflict; the one
	// with the latest end is enough to decide. Earlier visits are covered by
	// the adjacent pass since v[i+1] has the smallest later start.
	if mode == ModeOverlap {
		latest := v[0].End()
		for j := 1; j < len(v); j++ {
			if !latest.Before(v[j].Start()) {
				flagged[j] = true
			}
			if v[j].End().After(latest) {
				latest = v[j].End()
			}
		}
	}

	var out []visit.Record
	for i, f := range flagged {
		if f {
			out = append(out, v[i])
		}
	}
	return out
}

// Detect groups records, scans every group and returns the flagged visits
// with duplicate rows removed. progress, when set, is called after each
// group.
func Detect(records []visit.Record, mode Mode, progress func(done, total int)) ([]visit.Record, int) {
	groups := GroupVisits(records)

	seen := map[string]bool{}
	var out []visit.Record
	for i, g := range groups {
		for _, r := range Scan(g, mode) {
			k := r.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
		if progress != nil {
			progress(i+1, len(groups))
		}
	}
	return out, len(groups)
}

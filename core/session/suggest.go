package session

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/presence/core"
)

// minSuggestRatio is how similar an id has to be to a roster entry to be suggested.
const minSuggestRatio = 0.6

// suggest returns the roster student whose id or name looks most like id, if any is close enough.
func suggest(id string, students []core.StudentRecord) *core.StudentRecord {
	id = core.CleanString(id, true /* lower */)
	if id == "" {
		return nil
	}
	getRatio := func(attr string) float64 {
		attr = core.CleanString(attr, true /* lower */)
		if attr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(id, ""), strings.Split(attr, "")).Ratio()
	}

	var (
		best      *core.StudentRecord
		bestRatio = minSuggestRatio
	)
	for i := range students {
		st := &students[i]
		ratio := getRatio(st.ID)
		if r := getRatio(st.Name); r > ratio {
			ratio = r
		}
		if ratio >= bestRatio {
			if best == nil || ratio > bestRatio {
				best, bestRatio = st, ratio
			}
		}
	}
	if best == nil {
		return nil
	}
	found := *best
	return &found
}

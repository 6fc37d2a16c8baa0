package skills

import (
	"math"
	"strings"
)

// MatchResult reports the overlap between a requested skill list and the
// corpus profile.
type MatchResult struct {
	Matched         []string `json:"matched"`
	Missing         []string `json:"missing"`
	MatchPercentage float64  `json:"match_percentage"`
}

// Match compares requested skill names against the profile. Comparison is
// case-insensitive on normalized forms, with containment in either direction
// ("react" matches "React.js"); tokens whose normalized forms are shorter
// than three characters must match exactly so "go" never matches "django".
// Blank or duplicate requested entries are dropped; zero usable entries is a
// defined edge case returning 0 with empty sets.
func Match(requested []string, profile Profile) MatchResult {
	res := MatchResult{Matched: []string{}, Missing: []string{}}

	seen := make(map[string]bool)
	for _, raw := range requested {
		name := strings.TrimSpace(raw)
		key := normalizeToken(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if profileHas(profile, key) {
			res.Matched = append(res.Matched, name)
		} else {
			res.Missing = append(res.Missing, name)
		}
	}

	total := len(res.Matched) + len(res.Missing)
	if total == 0 {
		return res
	}
	pct := float64(len(res.Matched)) / float64(total) * 100
	res.MatchPercentage = math.Round(pct*10) / 10
	return res
}

func profileHas(profile Profile, key string) bool {
	for i := range profile.skills {
		ck := profile.skills[i].key
		if ck == key {
			return true
		}
		if len(key) >= 3 && len(ck) >= 3 &&
			(strings.Contains(ck, key) || strings.Contains(key, ck)) {
			return true
		}
	}
	return false
}

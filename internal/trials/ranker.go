package trials

import (
	"sort"
	"strconv"
	"strings"

	"github.com/trialmatch-ai/platform/internal/profile"
)

// Rank orders trials by relevance to the patient, highest score first. The
// sort is stable so registry order breaks ties.
func Rank(list []ClinicalTrial, p profile.Profile) []ClinicalTrial {
	ranked := make([]ClinicalTrial, len(list))
	copy(ranked, list)
	sort.SliceStable(ranked, func(i, j int) bool {
		return relevanceScore(ranked[i], p) > relevanceScore(ranked[j], p)
	})
	return ranked
}

func relevanceScore(trial ClinicalTrial, p profile.Profile) float64 {
	var score float64

	if p.PrimaryCondition != "" {
		condition := strings.ToLower(p.PrimaryCondition)
		for _, c := range trial.Conditions {
			if strings.Contains(strings.ToLower(c), condition) {
				score += 10
				break
			}
		}
	}

	if p.Country != "" {
		for _, loc := range trial.Locations {
			if strings.EqualFold(loc.Country, p.Country) {
				score += 5
				break
			}
		}
	}
	if p.StateProvince != "" {
		for _, loc := range trial.Locations {
			if strings.EqualFold(loc.State, p.StateProvince) {
				score += 3
				break
			}
		}
	}

	if p.Age != nil && trial.MinimumAge != "" && trial.MaximumAge != "" {
		if ParseAge(trial.MinimumAge) <= *p.Age && *p.Age <= ParseAge(trial.MaximumAge) {
			score += 5
		}
	}

	if p.BiologicalSex != "" && trial.Sex != "" {
		if strings.EqualFold(trial.Sex, "all") || strings.EqualFold(trial.Sex, p.BiologicalSex) {
			score += 2
		}
	}

	return score
}

// ParseAge reads the leading integer of a registry age bound like "18 Years".
// Unparseable bounds default to 0.
func ParseAge(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}

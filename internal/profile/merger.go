package profile

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Merge folds newly extracted attributes into a profile, returning a new
// profile and leaving the input untouched. List-typed fields grow by set
// union, mapping-typed fields shallow-merge, scalars overwrite. Absent or
// null values are no-ops and unknown keys are ignored, so merging the same
// payload twice is idempotent.
func Merge(current Profile, extracted map[string]any) Profile {
	merged := current.Clone()

	for key, value := range extracted {
		if value == nil {
			continue
		}

		switch key {
		case "age":
			if age, ok := intValue(value); ok && age >= 0 {
				merged.Age = &age
			}
		case "biological_sex":
			if s, ok := stringValue(value); ok {
				merged.BiologicalSex = normalizeSex(s)
			}
		case "primary_condition":
			if s, ok := stringValue(value); ok {
				merged.PrimaryCondition = s
			}
		case "condition_stage":
			if s, ok := stringValue(value); ok {
				merged.ConditionStage = s
			}
		case "diagnosis_date":
			if s, ok := stringValue(value); ok {
				merged.DiagnosisDate = s
			}
		case "country":
			if s, ok := stringValue(value); ok {
				merged.Country = s
			}
		case "state_province":
			if s, ok := stringValue(value); ok {
				merged.StateProvince = s
			}
		case "city":
			if s, ok := stringValue(value); ok {
				merged.City = s
			}
		case "willing_to_travel":
			if b, ok := boolValue(value); ok {
				merged.WillingToTravel = &b
			}
		case "comorbidities":
			merged.Comorbidities = unionStrings(merged.Comorbidities, stringList(value))
		case "prior_treatments":
			merged.PriorTreatments = unionStrings(merged.PriorTreatments, stringList(value))
		case "current_medications":
			merged.CurrentMedications = unionStrings(merged.CurrentMedications, stringList(value))
		case "allergies":
			merged.Allergies = unionStrings(merged.Allergies, stringList(value))
		case "lab_values":
			merged.LabValues = mergeMap(merged.LabValues, value)
		case "smoking_status":
			if s, ok := stringValue(value); ok {
				merged.SmokingStatus = s
			}
		case "alcohol_use":
			if s, ok := stringValue(value); ok {
				merged.AlcoholUse = s
			}
		case "pregnancy_status":
			if s, ok := stringValue(value); ok {
				merged.PregnancyStatus = s
			}
		case "ecog_status":
			if ecog, ok := intValue(value); ok && ecog >= 0 && ecog <= 5 {
				merged.ECOGStatus = &ecog
			}
		case "additional_attributes":
			merged.AdditionalAttributes = mergeMap(merged.AdditionalAttributes, value)
		}
	}

	return merged
}

func normalizeSex(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SexMale:
		return SexMale
	case SexFemale:
		return SexFemale
	case SexOther:
		return SexOther
	default:
		return SexUnknown
	}
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// intValue accepts JSON numbers (float64 after unmarshal), native ints, and
// numeric strings.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func boolValue(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed, true
		}
	}
	return false, false
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := stringValue(item); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s, ok := stringValue(v); ok {
			return []string{s}
		}
	}
	return nil
}

// unionStrings appends items not already present, preserving existing order.
// Matching is exact; no case normalization is applied.
func unionStrings(existing, additions []string) []string {
	if len(additions) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	out := existing
	for _, s := range additions {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func mergeMap(existing map[string]any, v any) map[string]any {
	incoming, ok := v.(map[string]any)
	if !ok || len(incoming) == 0 {
		return existing
	}
	if existing == nil {
		existing = make(map[string]any, len(incoming))
	}
	for k, val := range incoming {
		if val == nil {
			continue
		}
		existing[k] = val
	}
	return existing
}

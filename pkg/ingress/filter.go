package ingress

// matchesFilters applies a Source's keyed filter lists against an alert's
// labels (spec §4.3 step 4: "keyed match with lists; a missing key fails
// the match; empty filter set matches all").
func matchesFilters(filters map[string][]string, labels map[string]string) bool {
	for key, accepted := range filters {
		value, ok := labels[key]
		if !ok {
			return false
		}
		if !contains(accepted, value) {
			return false
		}
	}
	return true
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

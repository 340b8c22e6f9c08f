package ingress

import "testing"

func TestMatchesFiltersEmptyMatchesAll(t *testing.T) {
	if !matchesFilters(nil, map[string]string{"a": "1"}) {
		t.Fatalf("expected empty filter set to match any labels")
	}
}

func TestMatchesFiltersMissingKeyFails(t *testing.T) {
	filters := map[string][]string{"severity": {"critical"}}
	if matchesFilters(filters, map[string]string{"cluster": "prod"}) {
		t.Fatalf("expected missing filter key to fail match")
	}
}

func TestMatchesFiltersValueInList(t *testing.T) {
	filters := map[string][]string{"severity": {"critical", "warning"}}
	if !matchesFilters(filters, map[string]string{"severity": "warning"}) {
		t.Fatalf("expected value present in accepted list to match")
	}
	if matchesFilters(filters, map[string]string{"severity": "info"}) {
		t.Fatalf("expected value absent from accepted list to fail match")
	}
}

func TestMatchesFiltersMultipleKeysAllMustMatch(t *testing.T) {
	filters := map[string][]string{
		"severity": {"critical"},
		"cluster":  {"prod"},
	}
	labels := map[string]string{"severity": "critical", "cluster": "staging"}
	if matchesFilters(filters, labels) {
		t.Fatalf("expected one mismatching key to fail the whole filter")
	}
}

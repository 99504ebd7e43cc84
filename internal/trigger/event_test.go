package trigger

import "testing"

func TestMatchesEmptyFilterMatchesAnything(t *testing.T) {
	if !matches(map[string]any{"a": 1}, Filter{}) {
		t.Fatal("empty filter should match any payload")
	}
}

func TestMatchesRequiresEveryKeyEqual(t *testing.T) {
	data := map[string]any{"kind": "shape.changed", "severity": "high"}

	if !matches(data, Filter{"kind": "shape.changed"}) {
		t.Fatal("single matching key should match")
	}
	if matches(data, Filter{"kind": "shape.changed", "severity": "low"}) {
		t.Fatal("mismatched value should not match")
	}
	if matches(data, Filter{"missing": "x"}) {
		t.Fatal("absent key should not match")
	}
}

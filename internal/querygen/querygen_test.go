package querygen

import (
	"errors"
	"reflect"
	"testing"
)

func TestParamSetsUngroupedCrossProduct(t *testing.T) {
	t.Parallel()
	sets, err := paramSets(map[string][]any{
		"list_id": {"a", "b"},
		"status":  {1, 2, 3},
	}, nil)
	if err != nil {
		t.Fatalf("paramSets: %v", err)
	}
	if len(sets) != 6 {
		t.Fatalf("got %d param sets, want 6 (2 x 3)", len(sets))
	}
	want := map[string]int{}
	for _, s := range sets {
		want[s["list_id"].(string)]++
	}
	if want["a"] != 3 || want["b"] != 3 {
		t.Errorf("uneven cross product: %v", want)
	}
}

func TestParamSetsGroupedZip(t *testing.T) {
	t.Parallel()
	sets, err := paramSets(nil, map[string][]any{
		"org_id":  {"o1", "o2"},
		"user_id": {"u1", "u2"},
	})
	if err != nil {
		t.Fatalf("paramSets: %v", err)
	}
	// Correlated params pair positionally: two tuples, not four combinations.
	if len(sets) != 2 {
		t.Fatalf("got %d param sets, want 2", len(sets))
	}
	if !reflect.DeepEqual(sets[0], map[string]any{"org_id": "o1", "user_id": "u1"}) {
		t.Errorf("first tuple = %v", sets[0])
	}
	if !reflect.DeepEqual(sets[1], map[string]any{"org_id": "o2", "user_id": "u2"}) {
		t.Errorf("second tuple = %v", sets[1])
	}
}

func TestParamSetsGroupedDominateUngrouped(t *testing.T) {
	t.Parallel()
	sets, err := paramSets(
		map[string][]any{"page": {1, 2, 3}},
		map[string][]any{"org_id": {"o1", "o2"}, "user_id": {"u1", "u2"}},
	)
	if err != nil {
		t.Fatalf("paramSets: %v", err)
	}
	// Tuples drive enumeration: one set per correlated tuple, never
	// multiplied by the ungrouped value count.
	if len(sets) != 2 {
		t.Fatalf("got %d param sets, want 2 (one per tuple, not 6)", len(sets))
	}
	if !reflect.DeepEqual(sets[0], map[string]any{"page": 1, "org_id": "o1", "user_id": "u1"}) {
		t.Errorf("first set = %v", sets[0])
	}
	if !reflect.DeepEqual(sets[1], map[string]any{"page": 1, "org_id": "o2", "user_id": "u2"}) {
		t.Errorf("second set = %v", sets[1])
	}
}

func TestParamSetsGroupedMismatch(t *testing.T) {
	t.Parallel()
	_, err := paramSets(nil, map[string][]any{
		"org_id":  {"o1", "o2"},
		"user_id": {"u1"},
	})
	var mismatch *GroupMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want *GroupMismatchError", err)
	}
}

func TestParamSetsEmpty(t *testing.T) {
	t.Parallel()
	sets, err := paramSets(nil, nil)
	if err != nil {
		t.Fatalf("paramSets: %v", err)
	}
	if len(sets) != 1 || len(sets[0]) != 0 {
		t.Fatalf("empty enumeration = %v, want one empty set", sets)
	}
}

func TestUnpackOne(t *testing.T) {
	t.Parallel()
	got := unpackOne([]any{[]any{1, 2}, []any{3}, "x"})
	if !reflect.DeepEqual(got, []any{1, 2, 3, "x"}) {
		t.Errorf("unpackOne = %v", got)
	}
}

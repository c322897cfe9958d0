package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeDependencies_Legacy(t *testing.T) {
	got, err := NormalizeDependencies(json.RawMessage(`["t1","t2"]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := DependencyList{
		{Target: "t1", Relation: FinishToStart, Lag: 0},
		{Target: "t2", Relation: FinishToStart, Lag: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNormalizeDependencies_LegacyMatchesTyped(t *testing.T) {
	legacy, err := NormalizeDependencies(json.RawMessage(`["a","b","c"]`))
	if err != nil {
		t.Fatalf("legacy: %v", err)
	}
	typed, err := NormalizeDependencies(json.RawMessage(
		`[{"target":"a","relation":"finish_to_start","lag":0},{"target":"b","relation":"finish_to_start"},{"target":"c"}]`))
	if err != nil {
		t.Fatalf("typed: %v", err)
	}
	if !reflect.DeepEqual(legacy, typed) {
		t.Fatalf("legacy %+v != typed %+v", legacy, typed)
	}

	// Re-encoding the normalized form and decoding it again is stable.
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var again DependencyList
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(again, legacy) {
		t.Fatalf("round trip changed edges: %+v", again)
	}
}

func TestNormalizeDependencies_NumericIDs(t *testing.T) {
	got, err := NormalizeDependencies(json.RawMessage(`[12, 7]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Targets()[0] != "12" || got.Targets()[1] != "7" {
		t.Fatalf("targets = %v", got.Targets())
	}
}

func TestNormalizeDependencies_TypedPassThrough(t *testing.T) {
	got, err := NormalizeDependencies(json.RawMessage(`[{"target":"x","relation":"start_to_start","lag":-2.5}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := DependencyList{{Target: "x", Relation: StartToStart, Lag: -2.5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNormalizeDependencies_Empty(t *testing.T) {
	for _, in := range []string{``, `null`, `[]`, `  `} {
		got, err := NormalizeDependencies(json.RawMessage(in))
		if err != nil {
			t.Errorf("NormalizeDependencies(%q) error: %v", in, err)
		}
		if got != nil {
			t.Errorf("NormalizeDependencies(%q) = %v, want nil", in, got)
		}
	}
}

func TestNormalizeDependencies_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
	}{
		{"NotArray", `{"target":"x"}`},
		{"MixedLegacy", `["a", {"target":"b"}]`},
		{"MissingTarget", `[{"relation":"finish_to_start"}]`},
		{"UnknownRelation", `[{"target":"a","relation":"whenever"}]`},
		{"EmptyID", `["a", ""]`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeDependencies(json.RawMessage(tc.in))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
		})
	}
}

func TestDependencyList_UnmarshalInsideTask(t *testing.T) {
	var task Task
	if err := json.Unmarshal([]byte(`{"id":"t3","title":"x","dependencies":["t1"]}`), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(task.Dependencies) != 1 || task.Dependencies[0].Relation != FinishToStart {
		t.Fatalf("dependencies = %+v", task.Dependencies)
	}
	if !task.DependsOn("t1") || task.DependsOn("t2") {
		t.Fatal("DependsOn mismatch")
	}
}

func TestDependencyList_Without(t *testing.T) {
	l := EdgesFromIDs([]string{"a", "b", "a", "c"})
	got := l.Without("a").Targets()
	if !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("Without(a) = %v", got)
	}
	if EdgesFromIDs(nil) != nil {
		t.Fatal("EdgesFromIDs(nil) should be nil")
	}
}

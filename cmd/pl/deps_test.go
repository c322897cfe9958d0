package main

import (
	"testing"

	"github.com/alfredjeanlab/planline/internal/model"
)

func TestParseDep(t *testing.T) {
	tests := []struct {
		in   string
		want model.DependencyEdge
	}{
		{"tsk-a", model.DependencyEdge{Target: "tsk-a", Relation: model.FinishToStart}},
		{"tsk-a:ss", model.DependencyEdge{Target: "tsk-a", Relation: model.StartToStart}},
		{"tsk-a:FF:2", model.DependencyEdge{Target: "tsk-a", Relation: model.FinishToFinish, Lag: 2}},
		{"tsk-a:sf:-1.5", model.DependencyEdge{Target: "tsk-a", Relation: model.StartToFinish, Lag: -1.5}},
		{"tsk-a:start_to_start", model.DependencyEdge{Target: "tsk-a", Relation: model.StartToStart}},
		{"tsk-a::4", model.DependencyEdge{Target: "tsk-a", Relation: model.FinishToStart, Lag: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDep(tt.in)
			if err != nil {
				t.Fatalf("parseDep(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseDep(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDep_Invalid(t *testing.T) {
	for _, in := range []string{"", ":fs", "tsk-a:xx", "tsk-a:fs:soon", "tsk-a:fs:1:2", "ms-abcdeABCDE:ss"} {
		if _, err := parseDep(in); err == nil {
			t.Errorf("parseDep(%q): expected error", in)
		}
	}
}

func TestParseDeps(t *testing.T) {
	deps, err := parseDeps([]string{"a", "b:ss:3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 2 || deps[1].Target != "b" || deps[1].Lag != 3 {
		t.Errorf("parseDeps = %+v", deps)
	}

	if deps, err := parseDeps(nil); err != nil || deps != nil {
		t.Errorf("parseDeps(nil) = %v, %v; want nil, nil", deps, err)
	}
	if _, err := parseDeps([]string{"a", "b:zz"}); err == nil {
		t.Error("expected error from bad second entry")
	}
}

func TestFormatDep(t *testing.T) {
	for _, in := range []string{"tsk-a", "tsk-a:ss", "tsk-a:ff:2", "tsk-a:fs:-1.5"} {
		e, err := parseDep(in)
		if err != nil {
			t.Fatal(err)
		}
		if got := formatDep(e); got != in {
			t.Errorf("formatDep(parseDep(%q)) = %q", in, got)
		}
	}
}

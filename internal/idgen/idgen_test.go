package idgen

import (
	"strings"
	"testing"
)

func TestNew_Format(t *testing.T) {
	for _, kind := range []Kind{Project, Task, Milestone, LockToken} {
		t.Run(string(kind), func(t *testing.T) {
			id, err := New(kind)
			if err != nil {
				t.Fatalf("New(%s): %v", kind, err)
			}
			suffix, ok := strings.CutPrefix(id, string(kind)+"-")
			if !ok {
				t.Fatalf("New(%s) = %q, missing prefix", kind, id)
			}
			if len(suffix) != randomLen {
				t.Errorf("random part of %q has %d chars, want %d", id, len(suffix), randomLen)
			}
			if strings.Trim(suffix, alphabet) != "" {
				t.Errorf("%q contains characters outside the alphabet", id)
			}
		})
	}
}

func TestNew_Unique(t *testing.T) {
	const n = 5000
	seen := make(map[string]bool, n)
	for i := range n {
		id, err := New(Task)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = true
	}
}

func TestKindOf(t *testing.T) {
	ms, err := New(Milestone)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		id     string
		want   Kind
		wantOK bool
	}{
		{ms, Milestone, true},
		{"prj-abcdeABCDE", Project, true},
		{"tsk-0123456789", Task, true},
		{"tsk-short", "", false},
		{"tsk-0123456789x", "", false},
		{"tsk-01234_6789", "", false},
		{"bug-abcdeABCDE", "", false},
		{"abcdeABCDE", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := KindOf(tt.id)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("KindOf(%q) = (%q, %v), want (%q, %v)", tt.id, got, ok, tt.want, tt.wantOK)
		}
	}
}

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RelationKind describes how a predecessor constrains its successor.
type RelationKind string

const (
	FinishToStart  RelationKind = "finish_to_start"
	StartToStart   RelationKind = "start_to_start"
	FinishToFinish RelationKind = "finish_to_finish"
	StartToFinish  RelationKind = "start_to_finish"
)

// String returns the string representation of the relation kind.
func (r RelationKind) String() string {
	return string(r)
}

// IsValid checks whether the relation kind is a known value.
func (r RelationKind) IsValid() bool {
	switch r {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// DependencyEdge is the canonical dependency representation: the owning task
// depends on Target under Relation, offset by Lag hours (negative for lead).
type DependencyEdge struct {
	Target   string       `json:"target"`
	Relation RelationKind `json:"relation"`
	Lag      float64      `json:"lag"`
}

// DependencyList is an ordered edge list that accepts both the legacy
// bare-id form and the typed form when decoded from JSON.
type DependencyList []DependencyEdge

// UnmarshalJSON normalizes either representation into typed edges.
func (l *DependencyList) UnmarshalJSON(data []byte) error {
	edges, err := NormalizeDependencies(data)
	if err != nil {
		return err
	}
	*l = edges
	return nil
}

// Targets returns the target ids in edge order.
func (l DependencyList) Targets() []string {
	out := make([]string, len(l))
	for i, e := range l {
		out[i] = e.Target
	}
	return out
}

// Without returns a copy of the list with every edge to target removed.
func (l DependencyList) Without(target string) DependencyList {
	var out DependencyList
	for _, e := range l {
		if e.Target != target {
			out = append(out, e)
		}
	}
	return out
}

// NormalizeDependencies converts a raw dependency list into typed edges.
//
// If the first element is a bare identifier (a JSON string or number) the
// whole list is treated as legacy and every entry becomes a finish_to_start
// edge with zero lag. Otherwise each element is decoded as a typed edge; a
// missing relation defaults to finish_to_start.
func NormalizeDependencies(raw json.RawMessage) (DependencyList, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalidDeps("must be a JSON array")
	}
	if len(items) == 0 {
		return nil, nil
	}

	if isBareID(items[0]) {
		return normalizeLegacy(items)
	}
	return normalizeTyped(items)
}

// EdgesFromIDs builds finish-to-start, zero-lag edges for the given targets.
func EdgesFromIDs(ids []string) DependencyList {
	if len(ids) == 0 {
		return nil
	}
	out := make(DependencyList, len(ids))
	for i, id := range ids {
		out[i] = DependencyEdge{Target: id, Relation: FinishToStart}
	}
	return out
}

func normalizeLegacy(items []json.RawMessage) (DependencyList, error) {
	ids := make([]string, 0, len(items))
	for i, item := range items {
		if !isBareID(item) {
			return nil, invalidDeps(fmt.Sprintf("entry %d: legacy dependency lists must contain only identifiers", i))
		}
		var id json.Number
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, invalidDeps(fmt.Sprintf("entry %d: %v", i, err))
		}
		switch x := v.(type) {
		case string:
			id = json.Number(x)
		case json.Number:
			id = x
		}
		if id == "" {
			return nil, invalidDeps(fmt.Sprintf("entry %d: empty identifier", i))
		}
		ids = append(ids, id.String())
	}
	return EdgesFromIDs(ids), nil
}

func normalizeTyped(items []json.RawMessage) (DependencyList, error) {
	out := make(DependencyList, 0, len(items))
	for i, item := range items {
		var e DependencyEdge
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, invalidDeps(fmt.Sprintf("entry %d: %v", i, err))
		}
		if e.Target == "" {
			return nil, invalidDeps(fmt.Sprintf("entry %d: target is required", i))
		}
		if e.Relation == "" {
			e.Relation = FinishToStart
		}
		if !e.Relation.IsValid() {
			return nil, invalidDeps(fmt.Sprintf("entry %d: unknown relation %q", i, e.Relation))
		}
		out = append(out, e)
	}
	return out, nil
}

func isBareID(item json.RawMessage) bool {
	item = bytes.TrimSpace(item)
	if len(item) == 0 {
		return false
	}
	switch c := item[0]; {
	case c == '"', c == '-', c >= '0' && c <= '9':
		return true
	}
	return false
}

func invalidDeps(msg string) error {
	return &ValidationError{Errors: []FieldError{{Field: "dependencies", Message: msg}}}
}

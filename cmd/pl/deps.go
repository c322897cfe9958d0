package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/planline/internal/idgen"
	"github.com/alfredjeanlab/planline/internal/model"
)

var relationAliases = map[string]model.RelationKind{
	"fs": model.FinishToStart,
	"ss": model.StartToStart,
	"ff": model.FinishToFinish,
	"sf": model.StartToFinish,
}

var relationShort = map[model.RelationKind]string{
	model.FinishToStart:  "fs",
	model.StartToStart:   "ss",
	model.FinishToFinish: "ff",
	model.StartToFinish:  "sf",
}

// parseDep parses a --dep value of the form target[:relation[:lag]], where
// relation is fs, ss, ff, sf or a full relation name and lag is in hours.
func parseDep(s string) (model.DependencyEdge, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 || parts[0] == "" {
		return model.DependencyEdge{}, fmt.Errorf("invalid dependency %q: want target[:relation[:lag]]", s)
	}
	if kind, ok := idgen.KindOf(parts[0]); ok && kind != idgen.Task {
		return model.DependencyEdge{}, fmt.Errorf("invalid dependency %q: %s is not a task id", s, parts[0])
	}
	e := model.DependencyEdge{Target: parts[0], Relation: model.FinishToStart}
	if len(parts) > 1 && parts[1] != "" {
		rel := model.RelationKind(strings.ToLower(parts[1]))
		if alias, ok := relationAliases[string(rel)]; ok {
			rel = alias
		}
		if !rel.IsValid() {
			return model.DependencyEdge{}, fmt.Errorf("invalid dependency %q: unknown relation %q", s, parts[1])
		}
		e.Relation = rel
	}
	if len(parts) > 2 {
		lag, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return model.DependencyEdge{}, fmt.Errorf("invalid dependency %q: lag: %w", s, err)
		}
		e.Lag = lag
	}
	return e, nil
}

func parseDeps(values []string) (model.DependencyList, error) {
	var out model.DependencyList
	for _, v := range values {
		e, err := parseDep(v)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// formatDep is the inverse of parseDep, omitting defaults.
func formatDep(e model.DependencyEdge) string {
	if e.Relation == model.FinishToStart && e.Lag == 0 {
		return e.Target
	}
	s := e.Target + ":" + relationShort[e.Relation]
	if e.Lag != 0 {
		s += ":" + strconv.FormatFloat(e.Lag, 'f', -1, 64)
	}
	return s
}

// Package cpm implements the critical path method over a task graph with
// finish-to-start, start-to-start, finish-to-finish and start-to-finish
// relations.
//
// Times are relative effort hours from project start (0). A Schedule is
// always computed for the whole project.
package cpm

import (
	"fmt"
	"math"
	"sort"

	"github.com/alfredjeanlab/planline/internal/model"
)

// criticalEpsilon is the slack tolerance under which a task is critical.
const criticalEpsilon = 1e-9

// Node is one schedulable task as seen by the engine.
type Node struct {
	ID       string
	Duration float64
	Deps     []model.DependencyEdge
}

// NodesFromTasks converts stored tasks into engine nodes, preserving order.
func NodesFromTasks(tasks []*model.Task) []Node {
	nodes := make([]Node, len(tasks))
	for i, t := range tasks {
		nodes[i] = Node{ID: t.ID, Duration: t.Duration(), Deps: t.Dependencies}
	}
	return nodes
}

// Timing holds the computed dates of one task.
type Timing struct {
	ID          string  `json:"id"`
	Duration    float64 `json:"duration"`
	EarlyStart  float64 `json:"early_start"`
	EarlyFinish float64 `json:"early_finish"`
	LateStart   float64 `json:"late_start"`
	LateFinish  float64 `json:"late_finish"`
	Slack       float64 `json:"slack"`
	Critical    bool    `json:"critical"`
}

// Schedule is the result of a CPM pass.
type Schedule struct {
	// Tasks is in topological order.
	Tasks      []Timing `json:"tasks"`
	Completion float64  `json:"completion"`

	index map[string]int
}

// Get returns the timing for id.
func (s *Schedule) Get(id string) (Timing, bool) {
	if s.index == nil {
		for _, t := range s.Tasks {
			if t.ID == id {
				return t, true
			}
		}
		return Timing{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return Timing{}, false
	}
	return s.Tasks[i], true
}

// CriticalPath returns the ids of critical tasks in topological order.
func (s *Schedule) CriticalPath() []string {
	var out []string
	for _, t := range s.Tasks {
		if t.Critical {
			out = append(out, t.ID)
		}
	}
	return out
}

// Fields returns the write-back form of the schedule.
func (s *Schedule) Fields() []model.ScheduleFields {
	out := make([]model.ScheduleFields, len(s.Tasks))
	for i, t := range s.Tasks {
		out[i] = model.ScheduleFields{
			TaskID:         t.ID,
			EarlyStart:     t.EarlyStart,
			EarlyFinish:    t.EarlyFinish,
			LateStart:      t.LateStart,
			LateFinish:     t.LateFinish,
			Slack:          t.Slack,
			IsCriticalPath: t.Critical,
		}
	}
	return out
}

// Compute validates the graph and runs the forward and backward passes.
//
// It returns *model.ValidationError for negative durations, duplicate ids or
// unknown relations, *model.NotFoundError for an edge to an id not in nodes,
// and *model.CyclicDependencyError when the graph has a cycle.
func Compute(nodes []Node) (*Schedule, error) {
	pos := make(map[string]int, len(nodes))
	var ve model.ValidationError
	for i, n := range nodes {
		if _, dup := pos[n.ID]; dup {
			ve.Errors = append(ve.Errors, model.FieldError{Field: "id", Message: fmt.Sprintf("duplicate task %s", n.ID)})
			continue
		}
		pos[n.ID] = i
		if n.Duration < 0 || math.IsNaN(n.Duration) {
			ve.Errors = append(ve.Errors, model.FieldError{
				Field:   "estimated_hours",
				Message: fmt.Sprintf("task %s: duration must not be negative, got %g", n.ID, n.Duration),
			})
		}
	}
	if ve.HasErrors() {
		return nil, &ve
	}

	order := make([]string, len(nodes))
	edges := make(map[string][]string, len(nodes))
	for i, n := range nodes {
		order[i] = n.ID
		for _, d := range n.Deps {
			if _, ok := pos[d.Target]; !ok {
				return nil, &model.NotFoundError{Kind: "task", ID: d.Target}
			}
			if !d.Relation.IsValid() {
				return nil, &model.ValidationError{Errors: []model.FieldError{{
					Field:   "dependencies",
					Message: fmt.Sprintf("task %s: unknown relation %q", n.ID, d.Relation),
				}}}
			}
			edges[n.ID] = append(edges[n.ID], d.Target)
		}
	}
	if cycle := DetectCycle(order, edges); cycle != nil {
		return nil, &model.CyclicDependencyError{Cycle: cycle}
	}

	topo := topoOrder(nodes, pos)
	es, ef := forwardPass(nodes, pos, topo)

	completion := 0.0
	for _, f := range ef {
		completion = math.Max(completion, f)
	}

	ls, lf := backwardPass(nodes, pos, topo, completion)

	s := &Schedule{
		Tasks:      make([]Timing, len(topo)),
		Completion: completion,
		index:      make(map[string]int, len(topo)),
	}
	for k, i := range topo {
		slack := ls[i] - es[i]
		s.Tasks[k] = Timing{
			ID:          nodes[i].ID,
			Duration:    nodes[i].Duration,
			EarlyStart:  es[i],
			EarlyFinish: ef[i],
			LateStart:   ls[i],
			LateFinish:  lf[i],
			Slack:       slack,
			Critical:    math.Abs(slack) < criticalEpsilon,
		}
		s.index[nodes[i].ID] = k
	}
	return s, nil
}

// topoOrder returns node indexes in dependency order using Kahn's
// algorithm. Among ready nodes the one earliest in the input goes first.
func topoOrder(nodes []Node, pos map[string]int) []int {
	indeg := make([]int, len(nodes))
	succ := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, d := range n.Deps {
			p := pos[d.Target]
			succ[p] = append(succ[p], i)
			indeg[i]++
		}
	}

	var ready []int
	for i := range nodes {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]int, 0, len(nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		out = append(out, i)
		for _, s := range succ[i] {
			indeg[s]--
			if indeg[s] == 0 {
				at := sort.SearchInts(ready, s)
				ready = append(ready, 0)
				copy(ready[at+1:], ready[at:])
				ready[at] = s
			}
		}
	}
	return out
}

func forwardPass(nodes []Node, pos map[string]int, topo []int) (es, ef []float64) {
	es = make([]float64, len(nodes))
	ef = make([]float64, len(nodes))
	for _, i := range topo {
		d := nodes[i].Duration
		start := 0.0
		for _, dep := range nodes[i].Deps {
			p := pos[dep.Target]
			var bound float64
			switch dep.Relation {
			case model.FinishToStart:
				bound = ef[p] + dep.Lag
			case model.StartToStart:
				bound = es[p] + dep.Lag
			case model.FinishToFinish:
				bound = ef[p] + dep.Lag - d
			case model.StartToFinish:
				bound = es[p] + dep.Lag - d
			}
			start = math.Max(start, bound)
		}
		es[i] = start
		ef[i] = start + d
	}
	return es, ef
}

func backwardPass(nodes []Node, pos map[string]int, topo []int, completion float64) (ls, lf []float64) {
	ls = make([]float64, len(nodes))
	lf = make([]float64, len(nodes))
	for i := range lf {
		lf[i] = completion
	}
	for k := len(topo) - 1; k >= 0; k-- {
		s := topo[k]
		ls[s] = lf[s] - nodes[s].Duration
		for _, dep := range nodes[s].Deps {
			p := pos[dep.Target]
			dp := nodes[p].Duration
			var bound float64
			switch dep.Relation {
			case model.FinishToStart:
				bound = ls[s] - dep.Lag
			case model.StartToStart:
				bound = ls[s] - dep.Lag + dp
			case model.FinishToFinish:
				bound = lf[s] - dep.Lag
			case model.StartToFinish:
				bound = lf[s] - dep.Lag + dp
			}
			lf[p] = math.Min(lf[p], bound)
		}
	}
	return ls, lf
}

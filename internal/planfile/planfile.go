// Package planfile reads YAML plan files so the CPM engine can run offline,
// without a server or store.
//
// A plan lists tasks with an id, an optional title, an effort estimate in
// hours and their dependencies. Dependencies accept the same two shapes as
// the API: a list of bare task ids, or a list of typed edges.
//
//	name: Bridge
//	tasks:
//	  - id: design
//	    hours: 5
//	  - id: build
//	    hours: 3
//	    dependencies: [design]
//	  - id: inspect
//	    hours: 2
//	    dependencies:
//	      - {target: build, relation: finish_to_finish, lag: 1}
package planfile

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/planline/internal/cpm"
	"github.com/alfredjeanlab/planline/internal/model"
)

// Plan is a parsed plan file.
type Plan struct {
	Name  string `yaml:"name"`
	Tasks []Task `yaml:"tasks"`
}

// Task is one entry in a plan file.
type Task struct {
	ID           string       `yaml:"id"`
	Title        string       `yaml:"title"`
	Hours        float64      `yaml:"hours"`
	Dependencies Dependencies `yaml:"dependencies"`
}

// Dependencies decodes either dependency shape into typed edges.
type Dependencies model.DependencyList

// UnmarshalYAML routes the node through the JSON normalizer so plan files
// and API payloads share one set of rules.
func (d *Dependencies) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("dependencies: %w", err)
	}
	edges, err := model.NormalizeDependencies(data)
	if err != nil {
		return err
	}
	*d = Dependencies(edges)
	return nil
}

// Load reads and parses the plan file at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a plan.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every task has an id. Graph errors such as unknown
// targets and cycles are left to the engine.
func (p *Plan) Validate() error {
	var ve model.ValidationError
	for i, t := range p.Tasks {
		if t.ID == "" {
			ve.Errors = append(ve.Errors, model.FieldError{Field: fmt.Sprintf("tasks[%d].id", i), Message: "is required"})
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// Nodes converts the plan into engine nodes in file order.
func (p *Plan) Nodes() []cpm.Node {
	nodes := make([]cpm.Node, len(p.Tasks))
	for i, t := range p.Tasks {
		nodes[i] = cpm.Node{ID: t.ID, Duration: t.Hours, Deps: model.DependencyList(t.Dependencies)}
	}
	return nodes
}

// Title returns the display title of task id, falling back to the id.
func (p *Plan) Title(id string) string {
	for _, t := range p.Tasks {
		if t.ID == id && t.Title != "" {
			return t.Title
		}
	}
	return id
}

// Compute runs the CPM engine over the plan.
func (p *Plan) Compute() (*cpm.Schedule, error) {
	return cpm.Compute(p.Nodes())
}

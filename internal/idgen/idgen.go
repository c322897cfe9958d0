// Package idgen generates entity IDs of the form "<kind>-<random>".
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Kind names the entity an ID belongs to. It doubles as the ID prefix.
type Kind string

const (
	Project   Kind = "prj"
	Task      Kind = "tsk"
	Milestone Kind = "ms"
	LockToken Kind = "lk"
)

const (
	alphabet  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	randomLen = 10
)

// New returns a fresh ID for kind, for example "tsk-3fQx9LmA0b".
func New(kind Kind) (string, error) {
	suffix, err := nanoid.Generate(alphabet, randomLen)
	if err != nil {
		return "", fmt.Errorf("idgen %s: %w", kind, err)
	}
	return string(kind) + "-" + suffix, nil
}

// KindOf returns the kind encoded in id. ok is false when id was not
// produced by New.
func KindOf(id string) (kind Kind, ok bool) {
	prefix, suffix, found := strings.Cut(id, "-")
	if !found || len(suffix) != randomLen || strings.Trim(suffix, alphabet) != "" {
		return "", false
	}
	switch k := Kind(prefix); k {
	case Project, Task, Milestone, LockToken:
		return k, true
	}
	return "", false
}

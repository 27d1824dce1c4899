// Package project resolves the project segment of an issue path to the
// store collection that holds its issues.
package project

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrInvalidName is returned for project names that cannot name a collection.
	ErrInvalidName = errors.New("invalid project name")
	// ErrUnknownProject is returned when an allow-list is configured and the
	// project is not on it.
	ErrUnknownProject = errors.New("unknown project")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Registry validates project names before they reach storage.
type Registry struct {
	allowed map[string]bool
}

// NewRegistry creates a registry. With no allowed names any well-formed
// project name is accepted.
func NewRegistry(allowed ...string) (*Registry, error) {
	r := &Registry{}
	for _, name := range allowed {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !namePattern.MatchString(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		if r.allowed == nil {
			r.allowed = make(map[string]bool)
		}
		r.allowed[name] = true
	}
	return r, nil
}

// Resolve returns the collection name for a project path segment.
func (r *Registry) Resolve(name string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if r.allowed != nil && !r.allowed[name] {
		return "", fmt.Errorf("%w: %s", ErrUnknownProject, name)
	}
	return name, nil
}

// Allowed returns the configured allow-list in sorted order, or nil when
// every well-formed name is accepted.
func (r *Registry) Allowed() []string {
	if r.allowed == nil {
		return nil
	}
	names := make([]string, 0, len(r.allowed))
	for name := range r.allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

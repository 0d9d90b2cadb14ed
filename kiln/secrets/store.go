package secrets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store is a read-only source of secret values. The engine only ever
// reads from it during environment resolution; secret management itself
// is external.
type Store interface {
	All() map[string]string
}

type mapStore struct {
	values map[string]string
}

func (s *mapStore) All() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Static wraps a fixed map. Used by tests and by callers that resolved
// secrets elsewhere.
func Static(values map[string]string) Store {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &mapStore{values: copied}
}

// FromFile loads a flat KEY: value YAML mapping.
func FromFile(path string) (Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %s: %w", path, err)
	}

	return &mapStore{values: values}, nil
}

// FromEnv picks the named variables out of the process environment.
// Absent variables are simply not present in the store; the resolver
// decides whether that is fatal.
func FromEnv(names []string) Store {
	values := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			values[name] = v
		}
	}
	return &mapStore{values: values}
}

package env

import (
	"fmt"
	"sort"
	"strings"
)

// MissingSecretError is returned when the descriptor marks a variable as
// required-secret and the secret store has no value for it. It surfaces
// before any service starts.
type MissingSecretError struct {
	Names []string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("missing required secrets: %s", strings.Join(e.Names, ", "))
}

// Resolve merges the three environment sources into one immutable map.
// Precedence is fixed: runner defaults < job-declared < secret store.
// The function is pure; resolving the same inputs twice yields the same
// map.
func Resolve(defaults, declared, secrets map[string]string, required []string) (map[string]string, error) {
	for key := range declared {
		if strings.HasPrefix(key, "KILN_") {
			return nil, fmt.Errorf("pipeline cannot declare KILN_* variables: %s", key)
		}
	}

	var missing []string
	for _, name := range required {
		if _, ok := secrets[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingSecretError{Names: missing}
	}

	merged := make(map[string]string, len(defaults)+len(declared)+len(secrets))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range declared {
		merged[k] = v
	}
	for k, v := range secrets {
		merged[k] = v
	}

	return expandAll(merged)
}

package env

import (
	"fmt"
	"regexp"
	"strings"
)

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandAll performs ${VAR} expansion on every value, looking variables
// up in the merged map itself. Expansion is single-pass: a value that
// expands into another ${...} reference is not expanded again, which
// keeps resolution deterministic and cycle-free.
func expandAll(merged map[string]string) (map[string]string, error) {
	expanded := make(map[string]string, len(merged))
	for key, value := range merged {
		result, err := expandString(value, merged)
		if err != nil {
			return nil, fmt.Errorf("failed to expand env var %s: %w", key, err)
		}
		expanded[key] = result
	}
	return expanded, nil
}

func expandString(s string, vars map[string]string) (string, error) {
	var missing []string

	result := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		value, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("undefined variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

package routing

import (
	"sort"

	"github.com/goliatone/go-ingress/core"
)

// ApplyMapping resolves every parameter path against payload. Any unresolved
// path fails the whole mapping.
func ApplyMapping(payload any, mapping map[string]string) (map[string]any, error) {
	params := make(map[string]any, len(mapping))
	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := mapping[name]
		value, ok := ExtractPath(payload, path)
		if !ok {
			err := core.ErrPathNotFound(path)
			err.Metadata["param"] = name
			return nil, err
		}
		params[name] = NormalizeValue(value)
	}
	return params, nil
}

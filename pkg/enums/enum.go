package enums

import (
	"fmt"
	"slices"
)

// parse matches value exactly against the allowed set of a string enum.
func parse[T ~string](kind, value string, allowed []T) (T, error) {
	if i := slices.Index(allowed, T(value)); i >= 0 {
		return allowed[i], nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}

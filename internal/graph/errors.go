package graph

import (
	"strings"

	"genesynth/internal/fault"
)

func cycleError(path []string) error {
	if len(path) == 0 {
		return fault.Configf("", "cycle detected")
	}
	return fault.Configf(path[0], "cycle detected: %s", strings.Join(path, " -> "))
}

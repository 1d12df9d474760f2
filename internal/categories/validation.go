package categories

import (
	"strings"

	"github.com/brodesk/brodesk/internal/shared"
)

func normalise(name, description string) (string, string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", "", shared.NewValidationError("name", "Category name is required")
	}
	return name, strings.TrimSpace(description), nil
}

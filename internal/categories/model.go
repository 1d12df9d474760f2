package categories

import (
	"time"

	"github.com/google/uuid"

	"github.com/brodesk/brodesk/internal/shared"
)

// ErrCategoryInUse blocks deleting a category complaints still reference.
var ErrCategoryInUse = shared.NewConflict("Cannot delete category that is in use")

// Category is an admin managed complaint category.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

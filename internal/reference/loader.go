package reference

import (
	"context"

	"github.com/ironverse/guardian/internal/models"
)

// Dir adapts an on-disk store directory to the engine's reference source.
// Each Load reads the directory cold, so registry changes made between
// cycles take effect on the next cycle with no migration logic.
type Dir struct {
	Path string
}

// Load reads and verifies the store. The context is accepted for interface
// symmetry; loading is local disk I/O and does not block on the network.
func (d Dir) Load(_ context.Context) ([]models.ReferenceEntry, error) {
	store, err := Load(d.Path)
	if err != nil {
		return nil, err
	}
	return store.Entries(), nil
}

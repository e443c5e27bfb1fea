package enrichment

import (
	"context"
)

// Repository stores enrichment records with version-checked saves.
// Save must fail with ErrVersionConflict unless the record's Version equals the stored version
// (zero for a record that does not exist yet); on success the stored version is incremented.
type Repository interface {
	Get(ctx context.Context, key Key) (Record, error)
	FindAll(ctx context.Context, keys []Key) (map[Key]Record, error)
	Save(ctx context.Context, record Record) (Record, error)
	Delete(ctx context.Context, key Key) error
}

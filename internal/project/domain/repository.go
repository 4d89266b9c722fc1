package domain

import "context"

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	// Status filters records by lifecycle status.
	Status Status

	// Tag keeps only records carrying the tag.
	Tag string
}

// Matches reports whether p passes the filter.
func (f ListFilter) Matches(p *Project) bool {
	if f.Status != "" && p.Status() != f.Status {
		return false
	}
	if f.Tag != "" && !p.HasTag(f.Tag) {
		return false
	}
	return true
}

// Tx is the view of the store inside one exclusive read-modify-persist cycle.
type Tx interface {
	// All returns every record as stored when the transaction began,
	// including writes made earlier in the same transaction.
	All(ctx context.Context) ([]*Project, error)

	// Insert adds a new record.
	Insert(ctx context.Context, p *Project) error

	// Save overwrites an existing record.
	// Returns NotFoundError if no record has the id.
	Save(ctx context.Context, p *Project) error

	// Delete removes a record.
	// Returns NotFoundError if no record has the id.
	Delete(ctx context.Context, id string) error
}

// Repository is the durable store of project records.
// Implementations may use SQLite or in-memory storage.
type Repository interface {
	// Load returns every committed record.
	Load(ctx context.Context) ([]*Project, error)

	// Update runs fn while holding the store's exclusive write scope.
	// Writes are committed when fn returns nil and discarded otherwise.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the repository.
	Close() error
}

package search

// PageIndex defines the interface for search index operations. Consumers
// should depend on this interface rather than the concrete *DB type to
// facilitate testing with mocks.
type PageIndex interface {
	IndexPage(doc Document) error
	DeletePage(userID, pageID string) error
	DeleteUser(userID string) error
	Search(userID string, q Query) ([]Result, error)
	IndexedIDs(userID string) (map[string]struct{}, error)
	Stats(userID string) (*Stats, error)
	Close() error
}

// Verify *DB satisfies PageIndex at compile time.
var _ PageIndex = (*DB)(nil)

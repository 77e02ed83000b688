//go:build sqlite

package storage

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

// DefaultStoreKind is the persistent backend compiled into this build.
func DefaultStoreKind() string {
	return KindSQLite
}

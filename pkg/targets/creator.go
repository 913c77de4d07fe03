package targets

// DBCreator owns the lifecycle of the benchmark fixture: it can tell whether a
// previous fixture exists, remove it and create an empty schema in its place.
type DBCreator interface {
	Init() error

	DBExists() (bool, error)

	CreateDB(createIndex bool) error

	RemoveOldDB() error
}

type DBCreatorCloser interface {
	DBCreator

	Close() error
}

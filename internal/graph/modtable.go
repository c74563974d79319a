package graph

import "sync"

// pathTable provides bidirectional mapping between resolved module file
// paths and dense integer module ids. Safe for concurrent interning during
// parallel parsing.
type pathTable struct {
	pathToID map[string]int
	idToPath []string
	lock     sync.RWMutex
}

func newPathTable() *pathTable {
	return &pathTable{
		pathToID: make(map[string]int),
	}
}

// Intern returns the unique id for the given path, assigning a new id on
// first sight.
func (table *pathTable) Intern(path string) int {
	table.lock.RLock()
	id, exists := table.pathToID[path]
	table.lock.RUnlock()

	if exists {
		return id
	}

	table.lock.Lock()
	defer table.lock.Unlock()

	// Double check.
	if existingID, found := table.pathToID[path]; found {
		return existingID
	}

	id = len(table.idToPath)
	table.idToPath = append(table.idToPath, path)
	table.pathToID[path] = id

	return id
}

// Lookup returns the id for a path without interning.
func (table *pathTable) Lookup(path string) (int, bool) {
	table.lock.RLock()
	defer table.lock.RUnlock()

	id, exists := table.pathToID[path]

	return id, exists
}

// Resolve returns the path for an id, or empty for an invalid id.
func (table *pathTable) Resolve(id int) string {
	table.lock.RLock()
	defer table.lock.RUnlock()

	if id < 0 || id >= len(table.idToPath) {
		return ""
	}

	return table.idToPath[id]
}

// Len returns the number of interned paths.
func (table *pathTable) Len() int {
	table.lock.RLock()
	defer table.lock.RUnlock()

	return len(table.idToPath)
}

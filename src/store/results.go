package store

// SearchResults is the uniform container for one semantic search outcome.
// Documents, Metadata and Distances are parallel slices; when Err is set all
// three are empty.
type SearchResults struct {
	Documents []string
	Metadata  []map[string]any
	Distances []float64
	Err       string
}

// ErrorResults returns a SearchResults that carries only an error message.
func ErrorResults(msg string) SearchResults {
	return SearchResults{Err: msg}
}

// IsEmpty reports whether the search matched nothing.
func (r SearchResults) IsEmpty() bool {
	return len(r.Documents) == 0
}

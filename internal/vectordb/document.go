package vectordb

// Document is one searchable passage from a medical source.
type Document struct {
	ID      string
	Title   string
	URL     string
	Content string
	// Source identifies where the document was ingested from (a file path
	// or collection name) so it can be replaced as a unit.
	Source   string
	Metadata map[string]string
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document Document
	Score    float32
}

package core

// Document is a retrieved knowledge base chunk with a relevance score and
// arbitrary metadata. Well known metadata keys are MetadataDocID and
// MetadataNamespace.
type Document struct {
	ID       string         `json:"id" msgpack:"id"`
	Content  string         `json:"content" msgpack:"content"`
	Score    float64        `json:"score" msgpack:"-"`
	Metadata map[string]any `json:"metadata,omitempty" msgpack:"metadata"`
}

const (
	// MetadataDocID overrides the identifier rendered for a document.
	MetadataDocID = "doc_id"
	// MetadataNamespace names the retrieval namespace a document belongs to.
	MetadataNamespace = "namespace"
)

// DocID returns the metadata doc_id, falling back to ID.
func (d Document) DocID() string {
	if v, ok := d.Metadata[MetadataDocID].(string); ok && v != "" {
		return v
	}
	return d.ID
}

// Namespace returns the metadata namespace or "".
func (d Document) Namespace() string {
	v, _ := d.Metadata[MetadataNamespace].(string)
	return v
}

package schema

// DocstoreDocumentTable represents the 'docstore.documents' table
type DocstoreDocumentTable struct {
	Table      string
	Collection string
	ID         string
	Fields     string
	Version    string
	CreatedAt  string
	UpdatedAt  string
}

// DocstoreDocument is the schema definition for docstore.documents
var DocstoreDocument = DocstoreDocumentTable{
	Table:      "docstore.documents",
	Collection: "collection",
	ID:         "id",
	Fields:     "fields",
	Version:    "version",
	CreatedAt:  "createdat",
	UpdatedAt:  "updatedat",
}

// Columns returns all standard column names in scan order
func (t DocstoreDocumentTable) Columns() []string {
	return []string{t.Collection, t.ID, t.Fields, t.Version, t.CreatedAt, t.UpdatedAt}
}

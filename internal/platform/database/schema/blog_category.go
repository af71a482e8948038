package schema

// BlogCategoryCollection represents the 'categories' document collection.
// Documents are keyed by slug.
type BlogCategoryCollection struct {
	Collection  string
	Name        string
	Description string
	CreatedAt   string
	CreatedBy   string
}

// BlogCategory is the schema definition for categories
var BlogCategory = BlogCategoryCollection{
	Collection:  "categories",
	Name:        "name",
	Description: "description",
	CreatedAt:   "createdAt",
	CreatedBy:   "createdBy",
}

package schema

// BlogPostCollection represents the 'posts' document collection
type BlogPostCollection struct {
	Collection  string
	Title       string
	Slug        string
	Body        string
	Excerpt     string
	Category    string
	Tags        string
	Date        string
	Status      string
	ReadTime    string
	Featured    string
	AuthorID    string
	AuthorName  string
	AuthorEmail string
	PublishedAt string
	CreatedAt   string
	UpdatedAt   string
}

// BlogPost is the schema definition for posts
var BlogPost = BlogPostCollection{
	Collection:  "posts",
	Title:       "title",
	Slug:        "slug",
	Body:        "body",
	Excerpt:     "excerpt",
	Category:    "category",
	Tags:        "tags",
	Date:        "date",
	Status:      "status",
	ReadTime:    "readTime",
	Featured:    "featured",
	AuthorID:    "authorId",
	AuthorName:  "authorName",
	AuthorEmail: "authorEmail",
	PublishedAt: "publishedAt",
	CreatedAt:   "createdAt",
	UpdatedAt:   "updatedAt",
}

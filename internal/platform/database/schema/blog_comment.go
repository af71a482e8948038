package schema

// BlogCommentCollection represents the 'comments' document collection
type BlogCommentCollection struct {
	Collection string
	PostID     string
	AuthorID   string
	AuthorName string
	Content    string
	ParentID   string
	Status     string
	Likes      string
	LikedBy    string
	Edited     string
	CreatedAt  string
	UpdatedAt  string
}

// BlogComment is the schema definition for comments
var BlogComment = BlogCommentCollection{
	Collection: "comments",
	PostID:     "postId",
	AuthorID:   "authorId",
	AuthorName: "authorName",
	Content:    "content",
	ParentID:   "parentId",
	Status:     "status",
	Likes:      "likes",
	LikedBy:    "likedBy",
	Edited:     "edited",
	CreatedAt:  "createdAt",
	UpdatedAt:  "updatedAt",
}

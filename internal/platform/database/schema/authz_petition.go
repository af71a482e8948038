package schema

// WriterPetitionCollection represents the 'writer-petitions' document collection
type WriterPetitionCollection struct {
	Collection  string
	UserID      string
	UserEmail   string
	DisplayName string
	Status      string
	Motivation  string
	Experience  string
	SampleLinks string
	SubmittedAt string
	ReviewedAt  string
	ReviewedBy  string
	ReviewNotes string
}

// WriterPetition is the schema definition for writer-petitions
var WriterPetition = WriterPetitionCollection{
	Collection:  "writer-petitions",
	UserID:      "userId",
	UserEmail:   "userEmail",
	DisplayName: "displayName",
	Status:      "status",
	Motivation:  "motivation",
	Experience:  "experience",
	SampleLinks: "sampleLinks",
	SubmittedAt: "submittedAt",
	ReviewedAt:  "reviewedAt",
	ReviewedBy:  "reviewedBy",
	ReviewNotes: "reviewNotes",
}

package schema

// BlogSubscriberCollection represents the 'subscribers' document collection.
// Documents are keyed by the lowercased email.
type BlogSubscriberCollection struct {
	Collection   string
	Email        string
	Source       string
	SubscribedAt string
}

// BlogSubscriber is the schema definition for newsletter subscribers
var BlogSubscriber = BlogSubscriberCollection{
	Collection:   "subscribers",
	Email:        "email",
	Source:       "source",
	SubscribedAt: "subscribedAt",
}

// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package subscriber manages the newsletter mailing list.

Anyone may subscribe an address once; the list itself is visible only to
principals holding canManageUsers.
*/
package subscriber

import "time"

const (
	// DefaultSource tags subscriptions made from the blog pages.
	DefaultSource = "blog"

	MaxEmailLength  = 254
	MaxSourceLength = 40
)

// Subscriber is one address on the mailing list.
type Subscriber struct {
	Email        string    `json:"email"`
	Source       string    `json:"source"`
	SubscribedAt time.Time `json:"subscribedAt"`
}

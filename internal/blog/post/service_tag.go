// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package post

import (
	"cmp"
	"context"
	"slices"
)

// # Tags

// Tag is a distinct tag of the published posts with its usage count.
type Tag struct {
	Name  string `json:"name"`
	Posts int    `json:"posts"`
}

// ListTags returns every tag used by a published post, sorted by name.
func (service *Service) ListTags(context context.Context) ([]Tag, error) {
	posts, err := service.posts.List(context, Filter{Status: StatusPublished})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, post := range posts {
		for _, tag := range post.Tags {
			counts[tag]++
		}
	}

	tags := make([]Tag, 0, len(counts))
	for name, count := range counts {
		tags = append(tags, Tag{Name: name, Posts: count})
	}
	slices.SortFunc(tags, func(a, b Tag) int { return cmp.Compare(a.Name, b.Name) })
	return tags, nil
}

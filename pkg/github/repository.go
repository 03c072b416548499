package github

import (
	"strconv"

	"nostrrepos/pkg/types"
)

// Slug is the owner/name pair used as the record's d tag
func (r *Repository) Slug() string {
	return r.Owner.Login + "/" + r.Name
}

// Record builds the unsigned repository announcement for r. Its CreatedAt
// is the repository's last update, so a published copy stays current until
// GitHub reports a newer change.
func (r *Repository) Record(author types.PubKey) types.Record {
	tags := types.Tags{
		{"title", r.Name},
		{"description", r.Description},
		{"r", r.HTMLURL},
		{"d", r.Slug()},
		{"published_at", strconv.FormatInt(r.CreatedAt.Unix(), 10)},
		{"alt", "Code repository: " + r.Name},
	}
	if r.License != nil && r.License.Key != "" {
		tags = append(tags, types.Tag{"license", r.License.Key})
	}
	if r.Language != "" {
		tags = append(tags, types.Tag{"l", r.Language, "programming-languages"})
	}

	return types.Record{
		Author:    author,
		Kind:      types.KindRepository,
		CreatedAt: r.UpdatedAt.Unix(),
		Tags:      tags,
	}
}

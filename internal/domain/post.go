package domain

import (
	"encoding/json"
	"slices"
)

// Post is a news post.
type Post struct {
	ID       ID        `json:"id" validate:"required"`
	Title    string    `json:"title" validate:"required"`
	Content  string    `json:"content"`
	Safe     bool      `json:"safe"`
	Redirect string    `json:"redirect"`
	Author   User      `json:"author" validate:"-"`
	Date     Timestamp `json:"date" validate:"required"`

	AffectedGrades     []ID `json:"affected_grades"`
	Tags               []ID `json:"tags"`
	RelatedDisciplines []ID `json:"related_disciplines"`
}

type postPayload struct {
	Post
	Author *User `json:"author"`
}

// ParsePost decodes a post. Posts without an author are attributed to
// AdminAuthor.
func ParsePost(raw json.RawMessage) (Post, error) {
	p, err := decode[postPayload]("post", raw)
	if err != nil {
		return Post{}, err
	}
	post := p.Post
	post.Author = AdminAuthor
	if p.Author != nil {
		post.Author = *p.Author
	}
	return post, nil
}

// DisciplineCategories returns the distinct categories of the post's
// related disciplines, in order of first appearance.
func (p Post) DisciplineCategories(disciplines Lookup[Discipline]) []ID {
	var out []ID
	for _, d := range ResolveAll(disciplines, p.RelatedDisciplines) {
		if d.Category != "" && !slices.Contains(out, d.Category) {
			out = append(out, d.Category)
		}
	}
	return out
}

// SortPostsNewestFirst orders posts by date, newest first, with the id as
// a tie breaker.
func SortPostsNewestFirst(posts []Post) {
	slices.SortStableFunc(posts, func(a, b Post) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return compareIDs(b.ID, a.ID)
	})
}

func compareIDs(a, b ID) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

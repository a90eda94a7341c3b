// Package models defines the domain types for Auralis.
package models

import (
	"slices"
	"time"
)

// Note is a single owner's text note with its optional AI and drawing data.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Summary   *string   `json:"summary,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Drawing   *string   `json:"drawing,omitempty"` // opaque serialized canvas state
	Pinned    bool      `json:"pinned"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can never alias collection state.
func (n Note) Clone() Note {
	c := n
	if n.Summary != nil {
		s := *n.Summary
		c.Summary = &s
	}
	if n.Drawing != nil {
		d := *n.Drawing
		c.Drawing = &d
	}
	c.Tags = slices.Clone(n.Tags)
	return c
}

// HasSummary reports whether the note carries a non-empty AI summary.
func (n Note) HasSummary() bool {
	return n.Summary != nil && *n.Summary != ""
}

// Patch carries the fields of a partial update. Nil fields are left untouched.
type Patch struct {
	Title    *string  `json:"title,omitempty"`
	Content  *string  `json:"content,omitempty"`
	Summary  *string  `json:"summary,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Drawing  *string  `json:"drawing,omitempty"`
	Pinned   *bool    `json:"pinned,omitempty"`
	Favorite *bool    `json:"favorite,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Summary == nil && p.Tags == nil &&
		p.Drawing == nil && p.Pinned == nil && p.Favorite == nil
}

// Apply returns a copy of n with the patch fields set.
func (p Patch) Apply(n Note) Note {
	out := n.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Content != nil {
		out.Content = *p.Content
	}
	if p.Summary != nil {
		s := *p.Summary
		out.Summary = &s
	}
	if p.Tags != nil {
		out.Tags = slices.Clone(p.Tags)
	}
	if p.Drawing != nil {
		d := *p.Drawing
		out.Drawing = &d
	}
	if p.Pinned != nil {
		out.Pinned = *p.Pinned
	}
	if p.Favorite != nil {
		out.Favorite = *p.Favorite
	}
	return out
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

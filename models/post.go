package models

// Post is the read-only view of a content-store article used for lookups.
type Post struct {
	ID    string `json:"id" db:"id"`
	Slug  string `json:"slug" db:"slug"`
	Title string `json:"title" db:"title"`
}

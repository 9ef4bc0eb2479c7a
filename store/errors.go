package store

import "errors"

var (
	ErrPostNotFound = errors.New("post not found")

	ErrInvalidSession = errors.New("invalid reading session")
)

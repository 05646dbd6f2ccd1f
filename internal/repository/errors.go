// Package repository defines the storage layer for users and refresh
// tokens together with the error values shared by every backend. These
// sentinel values allow the service layer to branch on storage outcomes
// without knowing which backend produced them. For example, ErrNotFound
// is returned by the MySQL, Redis and in-memory stores alike when a lookup
// misses, while ErrNotActive signals that a conditional state transition
// lost because the token was no longer active.
package repository

import "errors"

// ErrNotFound is returned when a lookup by id, email or token hash
// matches nothing.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting a user whose email is
// already present.
var ErrEmailExists = errors.New("email already exists")

// ErrNotActive is returned by Rotate when the token record is no longer
// active at the moment of the conditional update, which happens when a
// concurrent caller rotated or revoked it first.
var ErrNotActive = errors.New("token not active")

// Package repository defines error types that are reused across the user
// store drivers. These sentinel values allow higher layers such as the auth
// service and handlers to distinguish between different failure scenarios
// without knowing which database is behind the UserStore.
package repository

import "errors"

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// ErrEmailExists is returned by Create when the email is already taken.
var ErrEmailExists = errors.New("email already exists")

// ErrIDConflict is returned by Create when another record already holds the
// identifier.  Callers re-derive the identifier and retry.
var ErrIDConflict = errors.New("user id already taken")

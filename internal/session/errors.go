package session

import "errors"

// ErrNotFound indicates the session id does not resolve to a live
// session. Returned, never panicked; the API layer maps it to 404.
var ErrNotFound = errors.New("session not found")

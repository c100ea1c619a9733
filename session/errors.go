package session

import (
	"errors"
	"fmt"
)

// ErrEmptyToken is returned by SignIn when given an empty token.
var ErrEmptyToken = errors.New("session: empty token")

// PersistenceError reports that the session store could not be written. When
// returned from SignIn the in-memory state was left unchanged.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session: persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

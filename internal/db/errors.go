package db

import "errors"

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("db: key not found")

// Operation names carried by Error.
const (
	OpGet     = "GET"
	OpSet     = "SET"
	OpIncr    = "INCRBY"
	OpExpire  = "EXPIRE"
	OpHSet    = "HSET"
	OpHGetAll = "HGETALL"
)

// Error tags a backend failure with the command that caused it.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

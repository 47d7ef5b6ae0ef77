package apperror

import (
	"errors"
	"fmt"
)

// Kind buckets errors by the subsystem that produced them.
type Kind string

const (
	KindConfig      Kind = "config"
	KindCache       Kind = "cache"
	KindRowStore    Kind = "row_store"
	KindTextIndex   Kind = "text_index"
	KindGraphEngine Kind = "graph_engine"
	KindLLM         Kind = "llm"
	KindIntentParse Kind = "intent_parse"
	KindRetrieval   Kind = "retrieval"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether any error in err's chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	for errors.As(err, &appErr) {
		if appErr.Kind == kind {
			return true
		}
		err = appErr.Err
	}
	return false
}

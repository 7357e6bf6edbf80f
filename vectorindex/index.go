// Package vectorindex provides semantic search over course material.
//
// Information Hiding:
// - Embedding model and vector encoding hidden behind Embedder
// - Storage schema and similarity ranking hidden inside SqliteIndex
// - Fuzzy course-title resolution hidden behind ResolveCourseTitle
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/richinex/coursebot/model"
)

// Index is the read side used by the retrieval tools.
type Index interface {
	// Search returns up to topK chunks ranked by similarity to query.
	Search(ctx context.Context, query string, filter Filter, topK int) ([]Hit, error)

	// ResolveCourseTitle maps a loose course name to a stored title.
	// The bool is false when nothing matches well enough.
	ResolveCourseTitle(ctx context.Context, name string) (string, bool, error)

	// Outline returns course metadata. Unknown titles return ErrCourseNotFound.
	Outline(ctx context.Context, title string) (model.Course, error)
}

// Filter narrows a search. Zero values mean no constraint.
type Filter struct {
	CourseTitle  string
	LessonNumber *int
}

// Hit is one ranked search result.
type Hit struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	Link         string
	Score        float64
}

// ErrorKind classifies index failures.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindEmptyIndex ErrorKind = "empty_index"
	KindTimeout    ErrorKind = "timeout"
)

// ErrCourseNotFound is returned by Outline for unknown titles.
var ErrCourseNotFound = errors.New("course not found")

// Error is a failure of the index itself, as opposed to an empty result.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("vector index %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("vector index %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries an index error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Kind == kind
}

// classify wraps err as an *Error. Not-found, cancellation, and existing
// index errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) || errors.Is(err, ErrCourseNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

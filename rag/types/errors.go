package types

import "fmt"

// IndexBuildError signals that corpus tokenization or embedding fetch
// failed while building an index. Callers can distinguish it from an empty
// result set, which always means "nothing relevant".
type IndexBuildError struct {
	Engine string
	Err    error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("%s index build failed: %v", e.Engine, e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// EmbeddingError signals that the embedding provider faulted for a query
// or a document. The engine never substitutes a zero vector.
type EmbeddingError struct {
	// Stage is "query" or "document".
	Stage string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s failed: %v", e.Stage, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ScoringError signals an internal scoring computation fault, such as
// malformed vectors.
type ScoringError struct {
	Engine string
	Err    error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("%s scoring failed: %v", e.Engine, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

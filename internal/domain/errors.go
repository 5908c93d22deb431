package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCorpus means there was nothing to index and no persisted index to fall back on.
	ErrEmptyCorpus = errors.New("no documents to index")
	// ErrNotInitialized is returned by queries against a pipeline whose index is unavailable.
	ErrNotInitialized = errors.New("retrieval system is not initialized")
)

// LoadError records a single PDF that could not be read.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// QueryStage names the step of a query that failed.
type QueryStage string

const (
	StageRetrieve QueryStage = "retrieve"
	StageComplete QueryStage = "complete"
)

// QueryError wraps a failure that happened while answering one question.
type QueryError struct {
	Stage QueryStage
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

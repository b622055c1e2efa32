// Package session tracks the lifecycle of repository indexing sessions.
//
// A session moves through a fixed pipeline of states and ends in either
// ready or error. Both terminal states are final: no transition, progress
// update, or metadata change is accepted afterwards.
package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotReady indicates a query against a session that has not
	// finished indexing.
	ErrSessionNotReady = errors.New("session not ready")

	// ErrInvalidTransition indicates an illegal state change.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// State is a session lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateCloning   State = "cloning"
	StateParsing   State = "parsing"
	StateEmbedding State = "embedding"
	StateReady     State = "ready"
	StateError     State = "error"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateReady || s == StateError
}

// ExternalStatus maps internal states to the coarse status exposed over
// the API: every non-terminal state reads as "indexing".
func (s State) ExternalStatus() string {
	switch s {
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "indexing"
	}
}

// transitions lists the legal forward moves. Any state except a terminal
// one may additionally fail into StateError.
var transitions = map[State]State{
	StateQueued:    StateCloning,
	StateCloning:   StateParsing,
	StateParsing:   StateEmbedding,
	StateEmbedding: StateReady,
}

// stateMessages are the human-readable progress notes reported per stage.
var stateMessages = map[State]string{
	StateQueued:    "Waiting to start indexing",
	StateCloning:   "Cloning repository",
	StateParsing:   "Parsing and chunking source files",
	StateEmbedding: "Generating embeddings and building the index",
	StateReady:     "Indexing complete",
}

// FailureCode classifies why a session ended in error.
type FailureCode string

const (
	FailInvalidRepositoryURL FailureCode = "invalid_repository_url"
	FailFetch                FailureCode = "fetch_error"
	FailEmbeddingFailureRate FailureCode = "embedding_failure_rate_exceeded"
	FailVectorIndex          FailureCode = "vector_index_error"
	FailTimeout              FailureCode = "indexing_timeout"
	FailInternal             FailureCode = "internal_error"
)

// Failure describes a terminal error.
type Failure struct {
	Code    FailureCode `json:"code"`
	Message string      `json:"message"`
}

// Stats accumulates indexing counters for status reporting.
type Stats struct {
	FilesChunked int `json:"files_chunked"`
	FilesSkipped int `json:"files_skipped"`
	Chunks       int `json:"chunks"`
	ChunksStored int `json:"chunks_stored"`
}

// Session is a snapshot of one indexing session. Values returned by the
// Manager are copies; mutating them has no effect on stored state.
type Session struct {
	ID        string    `json:"id"`
	RepoURL   string    `json:"repo_url"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// EmbeddingModel and EmbeddingDimension record the model identity used
	// during indexing so queries can be checked against it.
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	EmbeddingDimension int    `json:"embedding_dimension,omitempty"`

	Stats   Stats    `json:"stats"`
	Failure *Failure `json:"failure,omitempty"`
}

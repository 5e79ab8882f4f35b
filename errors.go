package docgraph

import (
	"errors"

	"github.com/docgraph/docgraph/chunker"
	"github.com/docgraph/docgraph/extract"
	"github.com/docgraph/docgraph/store"
)

var (
	// ErrChunking is returned for unusable document input. It is the only
	// extraction-side error that aborts a build; it fires before any model
	// call is made.
	ErrChunking = chunker.ErrInvalidInput

	// ErrModelTimeout marks a chunk whose model calls exceeded their
	// deadline after retries. Never fatal to the document; surfaced as a
	// chunk failure on the build result.
	ErrModelTimeout = extract.ErrTimeout

	// ErrModelMalformed marks a chunk whose model output failed to parse
	// after retries. Never fatal to the document.
	ErrModelMalformed = extract.ErrMalformed

	// ErrStoreUnavailable is returned when the graph-store write fails. The
	// build result still carries the computed graph; callers can retry the
	// write with Builder.Write without recomputing.
	ErrStoreUnavailable = store.ErrUnavailable

	// ErrInvalidRequest is returned for malformed build requests (missing
	// document ID, unknown extraction level, broken element tree).
	ErrInvalidRequest = errors.New("docgraph: invalid build request")
)

package converter

import (
	"errors"
	"fmt"
)

var (
	// ErrImageUnavailable means the cover source image is missing or undecodable.
	ErrImageUnavailable = errors.New("cover image unavailable")

	// ErrEpubParse means the input is not a readable EPUB container.
	ErrEpubParse = errors.New("epub parse failed")

	// ErrEpubSerialize means the rewritten container could not be encoded.
	ErrEpubSerialize = errors.New("epub serialize failed")

	// ErrEpubProcessing matches every cover rewrite failure.
	ErrEpubProcessing = errors.New("epub processing failed")
)

// RewriteError reports the rewrite stage that failed. It matches
// ErrEpubProcessing, its Kind and the underlying cause with errors.Is.
type RewriteError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("cover rewrite failed at %s: %v", e.Stage, e.Err)
}

func (e *RewriteError) Unwrap() []error {
	return []error{ErrEpubProcessing, e.Kind, e.Err}
}

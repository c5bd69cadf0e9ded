package pipeline

import "errors"

// Classified pipeline failures. The runner surfaces these to
// subscribers with their own text; anything unclassified is sanitized
// to a generic message before it reaches the event feed.
var (
	ErrNotZip     = errors.New("file is not a valid ZIP archive")
	ErrCorruptZip = errors.New("file is a corrupt ZIP archive")
)

// ErrNoPages marks the zero-page outcome. It is a warning, not a
// failure: the job concludes with an explanatory message and no
// document.
var ErrNoPages = errors.New("no supported image files found")

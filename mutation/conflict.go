package mutation

import (
	"io"
	"log/slog"

	"github.com/cyp0633/davmutate/errs"
)

var conflictMessages = map[errs.ConflictReason]string{
	errs.ReasonStale:        "the resource was changed by another client since it was read",
	errs.ReasonDuplicate:    "a resource already exists at the target location",
	errs.ReasonGone:         "the resource was deleted by another client",
	errs.ReasonMissingToken: "the server did not report a version for the resource, so the change cannot be guarded",
}

// ConflictResolver turns a detected conflict into a typed error. It never merges and never
// retries.
type ConflictResolver struct {
	logger *slog.Logger
}

// NewConflictResolver creates a resolver. A nil logger discards output.
func NewConflictResolver(logger *slog.Logger) *ConflictResolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConflictResolver{logger: logger}
}

// Resolve builds the conflict error for a failed precondition on resourceURL.
func (r *ConflictResolver) Resolve(op string, reason errs.ConflictReason, resourceURL, staleToken string) error {
	r.logger.Warn("mutation conflict",
		"op", op,
		"reason", reason,
		"url", resourceURL)
	return &errs.ConflictError{
		ResourceURL: resourceURL,
		StaleToken:  staleToken,
		Reason:      reason,
		Message:     conflictMessages[reason],
	}
}

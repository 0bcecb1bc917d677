package mutation

import (
	"fmt"
	"net/http"

	"github.com/cyp0633/davmutate/davclient"
)

// OutcomeKind is the closed set of results a write can have.
type OutcomeKind int

const (
	// SuccessWithToken means the server accepted the write and reported the new version token.
	SuccessWithToken OutcomeKind = iota
	// SuccessWithoutToken means the write was accepted but the stored text must be re-fetched.
	SuccessWithoutToken
	// Conflict means the precondition failed.
	Conflict
	// NotFound means the target does not exist.
	NotFound
	// Failure is any other answer.
	Failure
)

func (k OutcomeKind) String() string {
	switch k {
	case SuccessWithToken:
		return "success-with-token"
	case SuccessWithoutToken:
		return "success-without-token"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not-found"
	default:
		return "failure"
	}
}

// Outcome is a wire response reduced to what the mutation layer decides on.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	ETag       string
	URL        string
	Attempts   int
}

// Classify converts a write response into an Outcome. Status codes are not inspected past this
// point.
func Classify(resp *davclient.Response) Outcome {
	out := Outcome{StatusCode: resp.StatusCode, ETag: resp.ETag, URL: resp.URL, Attempts: resp.Attempts}
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300 && resp.ETag != "":
		out.Kind = SuccessWithToken
	case code >= 200 && code < 300:
		out.Kind = SuccessWithoutToken
	case code == http.StatusPreconditionFailed:
		out.Kind = Conflict
	case code == http.StatusNotFound || code == http.StatusGone:
		out.Kind = NotFound
	default:
		out.Kind = Failure
	}
	return out
}

// FailureError reports a write the server refused for a reason other than a precondition.
type FailureError struct {
	Op         string
	URL        string
	StatusCode int
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s %s: server answered %d %s", e.Op, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

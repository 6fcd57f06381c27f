package ledger

import (
	"errors"
	"net/http"

	workererrors "agentscore/internal/errors"
)

// ErrUnknownIdentity is returned by Memory for identities it never stored.
var ErrUnknownIdentity = &workererrors.Error{
	Kind:       workererrors.KindPermanentRemote,
	Op:         "ledger.read",
	StatusCode: http.StatusNotFound,
	Err:        errors.New("identity not on ledger"),
}

// ErrMissingScore is returned when the ledger answers without a reputation
// field. Callers must not read it as a zero score.
var ErrMissingScore = workererrors.New(workererrors.KindPermanentRemote, "ledger.read", errors.New("response has no reputation field"))

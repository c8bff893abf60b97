package service

import (
	"context"

	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

// Capability scopes, one per external operation. NOTIFY deliberately uses a
// distinct scope: submitting an incomplete record is a privilege granted to
// field agents, not to every declarer.
const (
	ScopeCreate           = "record.create"
	ScopeRead             = "record.read"
	ScopeDeclare          = "record.declare"
	ScopeValidate         = "record.validate"
	ScopeRegister         = "record.register"
	ScopeReject           = "record.reject"
	ScopeArchive          = "record.archive"
	ScopeNotifyIncomplete = "record.notify-incomplete"
	ScopePrintCertificate = "record.print-certificate"
	ScopeAssign           = "record.assign"
	ScopeCorrect          = "record.correct"
)

// Authorizer answers capability checks. Checks run first, before any
// repository access, so an unauthorized caller never learns whether the
// event exists.
type Authorizer interface {
	Require(ctx context.Context, userID id.UserID, scope string) error
}

// ScopeAuthorizer grants a capability when the request context carries the
// matching scope. The auth middleware seeds the context from validated token
// claims; tests seed it directly.
type ScopeAuthorizer struct{}

func (ScopeAuthorizer) Require(ctx context.Context, userID id.UserID, scope string) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "no authenticated user")
	}
	for _, held := range requestcontext.Scopes(ctx) {
		if held == scope {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeForbidden, "missing required scope %s", scope)
}

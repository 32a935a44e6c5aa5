package domain

import "errors"

// Kind classifies an Error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindClientInput
	KindAuthentication
	KindAuthorization
	KindConflict
	KindNotFound
	KindRateLimited
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a caller-actionable failure with a stable code. Sentinels are
// compared by identity with errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrIdentifierRequired  = newError(KindClientInput, "identifier_required", "exactly one of user_name, email or phone is required")
	ErrAmbiguousIdentifier = newError(KindClientInput, "ambiguous_identifier", "provide only one of user_name, email or phone")
	ErrInvalidRequest      = newError(KindClientInput, "invalid_request", "invalid request")
	ErrInvalidChannel      = newError(KindClientInput, "invalid_code_type", "code_type must be sms or email")
	ErrWeakPassword        = newError(KindClientInput, "weak_password", "password does not meet the strength policy")
	ErrUnknownProvider     = newError(KindClientInput, "unknown_provider", "oauth provider is not configured")

	ErrInvalidCredentials = newError(KindAuthentication, "invalid_credentials", "invalid username or password")
	ErrInvalidCode        = newError(KindAuthentication, "invalid_verification_code", "verification code wrong or expired")
	ErrInvalidToken       = newError(KindAuthentication, "invalid_token", "invalid or expired token")
	ErrInvalidState       = newError(KindAuthentication, "invalid_state", "invalid or expired state parameter")
	ErrUserDisabled       = newError(KindAuthentication, "user_disabled", "user disabled")

	ErrForbidden = newError(KindAuthorization, "forbidden", "insufficient privileges")

	ErrUserExists           = newError(KindConflict, "user_exists", "user already exists")
	ErrProviderAlreadyBound = newError(KindConflict, "provider_already_bound", "this external account is already bound to another user")
	ErrRoleInUse            = newError(KindConflict, "role_in_use", "role is still assigned to users")

	ErrUserNotFound = newError(KindNotFound, "user_not_found", "user not found")

	ErrRateLimited = newError(KindRateLimited, "rate_limited", "too many requests, try again later")

	ErrUpstream           = newError(KindUpstream, "upstream_failure", "identity provider request failed")
	ErrCodeDeliveryFailed = newError(KindUpstream, "code_delivery_failed", "failed to deliver verification code")

	ErrTokenExpired     = newError(KindClientInput, "token_expired", "token already expired")
	ErrStoreUnavailable = newError(KindInternal, "store_unavailable", "credential store unavailable")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

package borrowing

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindLimitExceeded   Kind = "LIMIT_EXCEEDED"
	KindPolicyViolation Kind = "POLICY_VIOLATION"
	KindInvalidInput    Kind = "INVALID_INPUT"
	KindUnavailable     Kind = "UNAVAILABLE"
)

// Error is a business-rule rejection. Every rejection names the entity and
// invariant involved so the caller can render an actionable message; only
// KindUnavailable marks a transient infrastructure fault worth retrying.
type Error struct {
	Kind   Kind   `json:"kind"`
	Entity string `json:"entity,omitempty"`
	ID     string `json:"id,omitempty"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e.Entity != "" && e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Kind, e.Entity, e.ID, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func notFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Detail: entity + " not found"}
}

func conflict(entity, id, detail string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, ID: id, Detail: detail}
}

func limitExceeded(memberUid string, limit int) *Error {
	return &Error{
		Kind:   KindLimitExceeded,
		Entity: "member",
		ID:     memberUid,
		Detail: fmt.Sprintf("member has reached the maximum of %d active loans", limit),
	}
}

func memberBlocked(memberUid string) *Error {
	return &Error{Kind: KindPolicyViolation, Entity: "member", ID: memberUid, Detail: "member is blocked from borrowing"}
}

func invalidInput(detail string) *Error {
	return &Error{Kind: KindInvalidInput, Detail: detail}
}

func unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Detail: err.Error()}
}

// KindOf extracts the error kind; non-domain errors report as unavailable.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindUnavailable
}

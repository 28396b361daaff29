package service

import (
	"fmt"

	"github.com/google/uuid"
)

// ReadPolicy decides who may read the status of a generation task.
type ReadPolicy string

const (
	// ReadPolicyOwner allows only the task owner.
	ReadPolicyOwner ReadPolicy = "owner"

	// ReadPolicyShared allows the owner, and anyone including anonymous
	// requesters when the task was submitted as public.
	ReadPolicyShared ReadPolicy = "shared"

	// ReadPolicyOpen allows any requester.
	ReadPolicyOpen ReadPolicy = "open"
)

// ParseReadPolicy converts a configuration value into a ReadPolicy.
func ParseReadPolicy(s string) (ReadPolicy, error) {
	switch p := ReadPolicy(s); p {
	case ReadPolicyOwner, ReadPolicyShared, ReadPolicyOpen:
		return p, nil
	}
	return "", fmt.Errorf("unknown status read policy %q", s)
}

// Allows reports whether requester may read a task owned by owner.
// uuid.Nil stands for an anonymous requester.
func (p ReadPolicy) Allows(requester, owner uuid.UUID, public bool) bool {
	switch p {
	case ReadPolicyOpen:
		return true
	case ReadPolicyShared:
		return public || (requester != uuid.Nil && requester == owner)
	default:
		return requester != uuid.Nil && requester == owner
	}
}

// Package auth resolves who is acting on a request and whether they may mutate the ledger.
package auth

import "github.com/fairyhunter13/verisure-ledger-simulator/internal/model"

// Action is a ledger mutation subject to authorization.
type Action string

const (
	ActionAddProduct Action = "add_product"
	ActionMarkFake   Action = "mark_fake"
)

// Authorizer decides whether an identity may perform a mutating action.
type Authorizer interface {
	Allows(id model.Identity, action Action) bool
}

// OwnerAuthorizer permits every action to the owner username and nothing to anyone
// else. Role is not consulted: an admin that is not the owner is refused.
type OwnerAuthorizer struct {
	Owner string
}

func NewOwnerAuthorizer(owner string) OwnerAuthorizer {
	return OwnerAuthorizer{Owner: owner}
}

func (a OwnerAuthorizer) Allows(id model.Identity, _ Action) bool {
	return a.Owner != "" && id.Username == a.Owner
}

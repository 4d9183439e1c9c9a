// Package model defines domain types used by the service.
package model

import "time"

// Product is a single ledger record.
type Product struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	QRHash string `json:"qrHash"`
	IsFake bool   `json:"isFake"`
}

// Role is a cosmetic persona label used by clients for navigation.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleManufacturer Role = "manufacturer"
	RoleCustomer     Role = "customer"
)

// Identity is the acting user of a request.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Anonymous is the identity used when a request carries no valid session.
var Anonymous = Identity{Username: "guest", Role: RoleCustomer}

// EventKind names what happened on the ledger.
type EventKind string

const (
	EventProductAdded      EventKind = "product_added"
	EventProductMarkedFake EventKind = "product_marked_fake"
	EventProductChecked    EventKind = "product_checked"
)

// Event is a sequenced record of a ledger mutation or verification.
type Event struct {
	Sequence  uint64    `json:"sequence"`
	Kind      EventKind `json:"kind"`
	ProductID int64     `json:"product_id"`
	Actor     string    `json:"actor,omitempty"`
	Verdict   string    `json:"verdict,omitempty"`
	At        time.Time `json:"at"`
}

// Stats summarizes the ledger contents.
type Stats struct {
	Total   int `json:"total"`
	Genuine int `json:"genuine"`
	Fake    int `json:"fake"`
}

// Package model defines the data structures used throughout the application.
package model

// Horse is one row of the remote `horses` table.
//
// The JSON tags are the remote column names, so a Horse can be decoded
// straight from a table-store response. ID is nil until the first insert
// comes back from the backend; StallNumber is nil for an unassigned horse.
//
// Owners is free text: a comma-joined list of human names. The three
// contact fields are either empty or 10 digits formatted XXX-XXX-XXXX once
// the roster has been saved.
type Horse struct {
	ID               *int64 `json:"id,omitempty"`
	UserID           string `json:"user_id"`
	Name             string `json:"name"`
	Owners           string `json:"owners"`
	OwnerContact     string `json:"owner_contact"`
	EmergencyContact string `json:"emergency_contact"`
	VetContact       string `json:"vet_contact"`
	StallNumber      *int   `json:"stall_number"`
}

// HasID reports whether the horse has been assigned a remote id.
func (h Horse) HasID() bool { return h.ID != nil }

// StallAssignment is one stall of the derived stall map.
// Horse is nil when the stall is empty.
type StallAssignment struct {
	Number int    `json:"number"`
	Horse  *Horse `json:"horse,omitempty"`
}

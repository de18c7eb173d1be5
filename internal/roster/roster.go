// Package roster holds the pure rules applied to a user's horse roster:
// name uniqueness, contact-number validation and formatting, and the
// stall map derived from stall numbers.
//
// Nothing here touches the network. The stateful store that persists a
// roster lives in internal/service and calls into this package before
// every batch save.
package roster

import (
	"strings"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/model"
)

// phoneDigits is the only accepted length of a non-empty contact number.
const phoneDigits = 10

// Validate runs the batch checks in save order: names, phones, stalls.
// The first failure wins; nil means the roster may be persisted.
func Validate(horses []model.Horse) error {
	if err := CheckDuplicateNames(horses); err != nil {
		return err
	}
	if err := CheckPhones(horses); err != nil {
		return err
	}
	return CheckStalls(horses)
}

// CheckDuplicateNames fails on the first name that repeats, comparing
// trimmed lowercase names and skipping blank ones.
//
// The error names the later of the two colliding entries, as typed.
func CheckDuplicateNames(horses []model.Horse) error {
	seen := make(map[string]struct{}, len(horses))
	for _, h := range horses {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return apperror.DuplicateName(name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// CheckPhones fails when any contact field of any horse holds a number
// whose digit count is neither 0 nor 10.
func CheckPhones(horses []model.Horse) error {
	for _, h := range horses {
		for _, c := range contacts(h) {
			if n := len(Digits(c)); n != 0 && n != phoneDigits {
				return apperror.InvalidPhone()
			}
		}
	}
	return nil
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatPhone rewrites a 10-digit number as XXX-XXX-XXXX.
// Anything else, including the empty string, is returned unchanged.
func FormatPhone(s string) string {
	d := Digits(s)
	if len(d) != phoneDigits {
		return s
	}
	return d[:3] + "-" + d[3:6] + "-" + d[6:]
}

// Normalize formats the three contact fields of h.
func Normalize(h model.Horse) model.Horse {
	h.OwnerContact = FormatPhone(h.OwnerContact)
	h.EmergencyContact = FormatPhone(h.EmergencyContact)
	h.VetContact = FormatPhone(h.VetContact)
	return h
}

func contacts(h model.Horse) [3]string {
	return [3]string{h.OwnerContact, h.EmergencyContact, h.VetContact}
}

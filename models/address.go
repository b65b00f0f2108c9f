package models

import "strings"

// Address identifies a remote account by service ID, phone number, or both.
type Address struct {
	ServiceID   string `json:"service_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// NewAddress trims both identifiers and returns the resulting address.
func NewAddress(serviceID, phoneNumber string) Address {
	return Address{
		ServiceID:   strings.TrimSpace(serviceID),
		PhoneNumber: strings.TrimSpace(phoneNumber),
	}
}

// IsValid reports whether at least one identifier is present.
func (a Address) IsValid() bool {
	return a.ServiceID != "" || a.PhoneNumber != ""
}

// Key is the stable lookup key for this address. Service IDs win over phone numbers.
func (a Address) Key() string {
	switch {
	case a.ServiceID != "":
		return "sid:" + strings.ToLower(a.ServiceID)
	case a.PhoneNumber != "":
		return "e164:" + a.PhoneNumber
	default:
		return ""
	}
}

// Equal compares two addresses by lookup key.
func (a Address) Equal(other Address) bool {
	return a.IsValid() && a.Key() == other.Key()
}

// String returns a display form suitable for logs and preview text.
func (a Address) String() string {
	if a.PhoneNumber != "" {
		return a.PhoneNumber
	}
	return a.ServiceID
}

// Merge fills the identifiers a lacks from other. Identifiers a already has are kept.
func (a Address) Merge(other Address) Address {
	if a.ServiceID == "" {
		a.ServiceID = other.ServiceID
	}
	if a.PhoneNumber == "" {
		a.PhoneNumber = other.PhoneNumber
	}
	return a
}

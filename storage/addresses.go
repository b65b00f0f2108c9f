package storage

import (
	"database/sql"
	"strings"

	"chatstore/models"
)

type addressLookup struct {
	clause string
	arg    string
}

// addressLookups lists the predicates that resolve addr against a table carrying
// service_id and phone_number columns, service ID first. A phone number match for an
// address that has a service ID only considers rows with no service ID of their own.
func addressLookups(addr models.Address) []addressLookup {
	lookups := make([]addressLookup, 0, 2)
	if addr.ServiceID != "" {
		lookups = append(lookups, addressLookup{clause: "service_id = ?", arg: strings.ToLower(addr.ServiceID)})
	}
	if addr.PhoneNumber != "" {
		clause := "phone_number = ?"
		if addr.ServiceID != "" {
			clause += " AND service_id IS NULL"
		}
		lookups = append(lookups, addressLookup{clause: clause, arg: addr.PhoneNumber})
	}
	return lookups
}

func serviceIDColumn(addr models.Address) sql.NullString {
	if addr.ServiceID == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.ToLower(addr.ServiceID), Valid: true}
}

func phoneNumberColumn(addr models.Address) sql.NullString {
	if addr.PhoneNumber == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: addr.PhoneNumber, Valid: true}
}

package models

// Thread kinds.
const (
	ThreadKindContact = "contact"
	ThreadKindGroup   = "group"
)

// Thread is one conversation. Contact threads carry an address, group threads a group ID.
type Thread struct {
	ID                string   `json:"id"`
	Kind              string   `json:"kind"`
	ContactAddress    *Address `json:"contact_address,omitempty"`
	GroupID           []byte   `json:"group_id,omitempty"`
	CreatedAt         int64    `json:"created_at"`
	LastInteractionID int64    `json:"last_interaction_id"`
}

// IsGroup reports whether the thread is a group conversation.
func (t *Thread) IsGroup() bool {
	return t != nil && t.Kind == ThreadKindGroup
}

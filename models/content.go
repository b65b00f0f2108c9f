package models

// LinkPreview is the preview card attached to a message body.
type LinkPreview struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	AttachmentID string `json:"attachment_id,omitempty"`
	Date         int64  `json:"date,omitempty"`
}

// QuotedMessage references an earlier message the body replies to.
type QuotedMessage struct {
	Timestamp     int64    `json:"timestamp"`
	Author        *Address `json:"author,omitempty"`
	Body          string   `json:"body,omitempty"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

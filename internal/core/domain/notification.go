package domain

import "time"

// Notification is a single server-pushed notification. Read state is
// mutated locally, optimistically, when the user marks it.
type Notification struct {
	ID        string    `json:"_id"`
	AltID     string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Key returns the identity used for de-duplication.
func (n Notification) Key() string {
	if n.ID != "" {
		return n.ID
	}
	return n.AltID
}

package domain

// UserRef identifies the authenticated actor on whose behalf the sync layer
// joins rooms and submits bids.
type UserRef struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// RoomKind is the category of a logical subscription scope.
type RoomKind string

const (
	RoomAuction      RoomKind = "auction"
	RoomNotification RoomKind = "notification"
	RoomChat         RoomKind = "chat"
)

// RoomKey renders the wire scope for a (kind, scope id) pair.
func RoomKey(kind RoomKind, scopeID string) string {
	return string(kind) + ":" + scopeID
}

package model

// RosterEntry is one chat visible to the current user. The name shown in the
// roster is the interlocutor, matching how the service flattens one-on-one
// chats.
type RosterEntry struct {
	ID                  int64
	Name                string
	Interlocutor        string
	AvatarURL           string
	InterlocutorDeleted bool
}

// User is the authenticated account as reported by the service.
type User struct {
	Username  string
	AvatarURL string
	Bio       string
}

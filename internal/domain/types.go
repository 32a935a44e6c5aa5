package domain

import "github.com/google/uuid"

type UserID = uuid.UUID
type RoleID = uuid.UUID
type PermissionID = uuid.UUID

// Channel is a verification-code delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) Valid() bool { return c == ChannelSMS || c == ChannelEmail }

// Registration methods recorded on the user row.
const (
	RegistrationPassword = "password"
	RegistrationSMS      = "sms"
	RegistrationEmail    = "email"
)

const DefaultRoleName = "user"

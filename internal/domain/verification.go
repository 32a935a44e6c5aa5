package domain

import "time"

// DefaultPurpose is the shared bucket used when callers do not namespace codes.
const DefaultPurpose = "verification"

type VerificationCode struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Code       string    `json:"code"`
	CodeType   Channel   `json:"code_type"`
	Purpose    string    `json:"purpose"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Attempts   int       `json:"attempts"`
	IsUsed     bool      `json:"is_used"`
	IsExpired  bool      `json:"is_expired"`
}

type BlacklistEntry struct {
	AddedAt   time.Time `json:"added_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

package service

type PasswordService interface {
	Hash(password string) (string, error)
	// Verify never fails loudly: a malformed hash is just a mismatch.
	Verify(password, hash string) bool
	// CheckStrength returns nil for an acceptable password and a
	// *impl.PasswordPolicyError (wrapping domain.ErrWeakPassword) otherwise.
	CheckStrength(password string) error
	GenerateRandom(length int) (string, error)
}

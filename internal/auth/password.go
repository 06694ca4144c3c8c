package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes a plaintext password with a per-call random salt.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// VerifyPassword reports whether plain matches the stored digest. A mismatch
// or a malformed digest both read as "not matching"; neither is an error the
// caller can act on differently.
func VerifyPassword(plain string, digest []byte) bool {
	return bcrypt.CompareHashAndPassword(digest, []byte(plain)) == nil
}

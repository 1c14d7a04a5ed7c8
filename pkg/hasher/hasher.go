/**
 * @description
 * This package provides the secret-hashing collaborator. The core only ever
 * sees the `Hasher` interface; tests substitute a deterministic fake so they
 * never pay bcrypt cost.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: Salted adaptive hashing for stored secrets.
 */

package hasher

import "golang.org/x/crypto/bcrypt"

// Hasher hashes secrets for storage and verifies presented secrets against a
// stored hash.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// Bcrypt implements Hasher with bcrypt at a configurable cost.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. Non-positive cost falls back to the
// library default.
func NewBcrypt(cost int) *Bcrypt {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (b *Bcrypt) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

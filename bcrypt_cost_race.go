//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds are several times slower, keep hashing affordable
func passwordHashCost() int {
	return bcrypt.DefaultCost - 2
}

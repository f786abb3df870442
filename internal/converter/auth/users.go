package auth

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleAdmin Role = "Admin"
	RoleGuest Role = "Guest"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleGuest
}

type User struct {
	Username string
	Role     Role
	hash     []byte
}

// ParseUsers reads "name:password:role" entries. The password may be given
// in plain text or as a bcrypt hash; plain passwords are hashed here.
func ParseUsers(entries []string) ([]User, error) {
	const op = "auth.ParseUsers"

	users := make([]User, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		first, last := strings.Index(entry, ":"), strings.LastIndex(entry, ":")
		if first <= 0 || last-first < 2 {
			return nil, errors.Errorf("%s: malformed user entry %q", op, entry)
		}
		parts := [3]string{entry[:first], entry[first+1 : last], entry[last+1:]}

		name := strings.ToLower(parts[0])
		if _, ok := seen[name]; ok {
			return nil, errors.Errorf("%s: duplicate user %q", op, parts[0])
		}
		seen[name] = struct{}{}

		role := Role(parts[2])
		if !role.Valid() {
			return nil, errors.Errorf("%s: unknown role %q for user %q", op, parts[2], parts[0])
		}

		hash := []byte(parts[1])
		if _, err := bcrypt.Cost(hash); err != nil {
			hash, err = bcrypt.GenerateFromPassword([]byte(parts[1]), bcrypt.DefaultCost)
			if err != nil {
				return nil, errors.Wrap(err, op)
			}
		}

		users = append(users, User{Username: parts[0], Role: role, hash: hash})
	}

	return users, nil
}

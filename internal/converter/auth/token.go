package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
)

type Claims struct {
	Role     Role   `json:"role"`
	ClientID string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	issuer string
	expiry time.Duration
	users  map[string]User
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string, expiry time.Duration, users []User) (*Authenticator, error) {
	const op = "auth.NewAuthenticator"

	if secret == "" {
		return nil, errors.Errorf("%s: empty signing secret", op)
	}
	if expiry <= 0 {
		return nil, errors.Errorf("%s: token expiry must be positive", op)
	}

	byName := make(map[string]User, len(users))
	for _, u := range users {
		byName[strings.ToLower(u.Username)] = u
	}

	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		users:  byName,
		now:    time.Now,
	}, nil
}

// Authenticate matches the username case-insensitively and the password exactly.
func (a *Authenticator) Authenticate(username, password string) (User, error) {
	u, ok := a.users[strings.ToLower(username)]
	if !ok {
		return User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	return u, nil
}

func (a *Authenticator) GenerateToken(u User, clientID string) (string, error) {
	const op = "auth.GenerateToken"

	now := a.now()
	claims := Claims{
		Role:     u.Role,
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.Username,
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, op)
	}

	return signed, nil
}

func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	},
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	if !token.Valid || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

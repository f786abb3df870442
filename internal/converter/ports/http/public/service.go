package public

import (
	"github.com/langowen/converter/internal/converter/auth"
	"github.com/langowen/converter/internal/converter/service"
)

type Providers interface {
	Provider(id service.ProviderID) (service.Converter, error)
}

type Authenticator interface {
	Authenticate(username, password string) (auth.User, error)
	GenerateToken(u auth.User, clientID string) (string, error)
	ParseToken(token string) (*auth.Claims, error)
}

package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const InternalTokenHeader = "X-Internal-Token"

// InternalTokenMiddleware guards the collaborator endpoints. An empty
// configured token rejects every request.
type InternalTokenMiddleware struct {
	token []byte
}

func NewInternalTokenMiddleware(token string) *InternalTokenMiddleware {
	return &InternalTokenMiddleware{token: []byte(strings.TrimSpace(token))}
}

func (m *InternalTokenMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		got := []byte(strings.TrimSpace(c.Get(InternalTokenHeader)))
		if len(m.token) == 0 || subtle.ConstantTimeCompare(got, m.token) != 1 {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
		}
		return c.Next()
	}
}

package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeService TokenType = "service"

// Claims are the only supported JWT claims shape for this service. Tokens are
// service-to-service credentials for the internal ops endpoints; there are no
// end-user sessions in this process.
type Claims struct {
	jwt.RegisteredClaims

	ServiceID string    `json:"service_id"`
	TokenType TokenType `json:"token_type"`
}

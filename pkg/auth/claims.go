package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role allowed on the operator API.
const RoleAdmin = "admin"

// OperatorClaims is the typed JWT presented by operator tooling.
type OperatorClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

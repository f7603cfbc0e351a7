package models

import (
	"github.com/golang-jwt/jwt/v4"
)

// CustomClaims are issued by the external auth service. ID is the player id
// used everywhere in the game subsystem.
type CustomClaims struct {
	jwt.RegisteredClaims
	ID       string `json:"id"`
	Username string `json:"username"`
}

// DisplayName falls back to the id when the token carries no username.
func (c *CustomClaims) DisplayName() string {
	if c.Username == "" {
		return c.ID
	}
	return c.Username
}

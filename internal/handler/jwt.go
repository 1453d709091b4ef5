package handler

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ParseJWTClaims parses a JWT token without verification and returns the claims.
// The token is verified by the API Gateway JWT authorizer before it gets here.
func ParseJWTClaims(tokenString string) (map[string]interface{}, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		return map[string]interface{}(claims), nil
	}

	return nil, fmt.Errorf("invalid token claims type")
}

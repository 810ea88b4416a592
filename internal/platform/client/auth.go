package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// warnIfExpired decodes the bearer token without verifying its signature
// (verification is the server's job) and logs when it is already expired.
func warnIfExpired(token string, log zerolog.Logger) {
	parser := jwt.NewParser()
	tok, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		log.Warn().Err(err).Msg("bearer token is not a parseable JWT")
		return
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if exp.Before(time.Now()) {
		log.Warn().Time("expired_at", exp.Time).Msg("bearer token is expired, requests will likely be rejected")
	}
}

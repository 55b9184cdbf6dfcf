package rpc

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const jwtClockSkew = 2 * time.Minute

// operatorAuth accepts either a static bearer token or an HMAC signed JWT.
// With neither configured, operator methods are refused.
type operatorAuth struct {
	token  string
	secret []byte
	issuer string
}

func newOperatorAuth(token, secret, issuer string) *operatorAuth {
	return &operatorAuth{
		token:  strings.TrimSpace(token),
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
	}
}

func (a *operatorAuth) configured() bool {
	return a != nil && (a.token != "" || len(a.secret) > 0)
}

func (a *operatorAuth) check(header string) *RPCError {
	if !a.configured() {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if a.token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1 {
		return nil
	}
	if len(a.secret) > 0 {
		if err := a.verifyJWT(token); err == nil {
			return nil
		}
	}
	return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
}

func (a *operatorAuth) verifyJWT(raw string) error {
	opts := []jwt.ParserOption{jwt.WithLeeway(jwtClockSkew), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// SessionCookieName is the cookie that carries the signed session token.
const SessionCookieName = "sessionId"

var ErrNoSessionToken = errors.New("no session token")

// CookieCodec wraps session tokens into signed cookies and reads them back.
// The cookie value is an HS256 JWT whose id claim is the session token.
type CookieCodec struct {
	secret []byte
	maxAge time.Duration
	secure bool
	now    func() time.Time
}

func NewCookieCodec(secret []byte, maxAge time.Duration, secure bool) *CookieCodec {
	return &CookieCodec{secret: secret, maxAge: maxAge, secure: secure, now: time.Now}
}

// Cookie returns the Set-Cookie value for token.
func (c *CookieCodec) Cookie(token string) (*http.Cookie, error) {
	now := c.now()
	expires := now.Add(c.maxAge)
	claims := jwt.StandardClaims{
		Id:        token,
		Issuer:    "accounts",
		IssuedAt:  now.Unix(),
		ExpiresAt: expires.Unix(),
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("signing session cookie: %w", err)
	}

	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Expired returns a cookie that removes the session cookie from the client.
func (c *CookieCodec) Expired() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// TokenFromRequest extracts the session token from the session cookie, or
// from an "Authorization: Bearer" header carrying the same signed value.
func (c *CookieCodec) TokenFromRequest(r *http.Request) (string, error) {
	var signed string
	if ck, err := r.Cookie(SessionCookieName); err == nil && ck.Value != "" {
		signed = ck.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		signed = strings.TrimPrefix(h, "Bearer ")
	}
	if signed == "" {
		return "", ErrNoSessionToken
	}
	return c.parse(signed)
}

func (c *CookieCodec) parse(signed string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid || claims.Id == "" {
		return "", ErrNoSessionToken
	}
	return claims.Id, nil
}

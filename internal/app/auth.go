package app

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxPrincipal = "principal"
	// audience of OAuth state tokens, never accepted as bearer tokens
	stateAudience = "oauth-state"
)

// Principal is the authenticated caller. Static tokens authenticate trusted
// services that may act for any user.
type Principal struct {
	UserID  string
	Service bool
}

var (
	errMissingAuth = errors.New("missing authorization")
	errAuthFormat  = errors.New("invalid authorization format")
	errBadToken    = errors.New("invalid token")
)

// Authenticator accepts static bearer tokens or HS256 JWTs whose subject is
// the user id.
type Authenticator struct {
	staticTokens []string
	jwtSecret    []byte
	stateSecret  []byte
	now          func() time.Time
}

func NewAuthenticator(staticTokens []string, jwtSecret string) *Authenticator {
	a := &Authenticator{staticTokens: staticTokens, now: time.Now}
	if jwtSecret != "" {
		a.jwtSecret = []byte(jwtSecret)
		a.stateSecret = a.jwtSecret
	} else {
		// state tokens only need to survive one OAuth round trip
		a.stateSecret = make([]byte, 32)
		_, _ = rand.Read(a.stateSecret)
	}
	return a
}

func (a *Authenticator) authenticate(header string) (Principal, error) {
	if header == "" {
		return Principal{}, errMissingAuth
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Principal{}, errAuthFormat
	}
	tokenStr := parts[1]

	// JWT path
	if a.jwtSecret != nil {
		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			return a.jwtSecret, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
			jwt.WithLeeway(5*time.Second),
			jwt.WithTimeFunc(a.now),
		)
		if err == nil && claims.Subject != "" && !hasAudience(claims, stateAudience) {
			return Principal{UserID: claims.Subject}, nil
		}
	}

	// static tokens
	for _, t := range a.staticTokens {
		if subtle.ConstantTimeCompare([]byte(tokenStr), []byte(t)) == 1 {
			return Principal{Service: true}, nil
		}
	}
	return Principal{}, errBadToken
}

func hasAudience(claims *jwt.RegisteredClaims, aud string) bool {
	for _, a := range claims.Audience {
		if a == aud {
			return true
		}
	}
	return false
}

// Middleware rejects requests without valid credentials.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := a.authenticate(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "UNAUTHORIZED"})
			return
		}
		c.Set(ctxPrincipal, p)
		c.Next()
	}
}

// Optional records the caller when credentials are present and valid, and
// lets anonymous requests through.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, err := a.authenticate(c.GetHeader("Authorization")); err == nil {
			c.Set(ctxPrincipal, p)
		}
		c.Next()
	}
}

func principal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(ctxPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// actsFor reports whether the caller may manage userID's data.
func actsFor(c *gin.Context, userID string) bool {
	p, ok := principal(c)
	return ok && (p.Service || p.UserID == userID)
}

// RequireSelf allows only the user named by the :id path parameter, or a
// service token.
func RequireSelf() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actsFor(c, c.Param("id")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// SignState binds an OAuth state parameter to userID for ttl.
func (a *Authenticator) SignState(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.stateSecret)
}

// VerifyState returns the user a state parameter was issued for.
func (a *Authenticator) VerifyState(state string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (interface{}, error) {
		return a.stateSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errBadToken
	}
	return claims.Subject, nil
}

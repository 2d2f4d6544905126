package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecr/ecrviewer/internal/platform/gate"
)

// SessionCookie is the cookie carrying the interactive session token.
const SessionCookie = "ecr-viewer.session-token"

// ErrNoSession is returned when a request carries no session credential.
var ErrNoSession = errors.New("no session")

// Session is an authenticated interactive user.
type Session struct {
	Subject   string
	Name      string
	Email     string
	ExpiresAt time.Time
}

// SessionProvider authenticates interactive users.
type SessionProvider interface {
	// Name is the configured provider id, e.g. "keycloak" or "ad".
	Name() string
	Authenticate(r *http.Request) (*Session, error)
}

// SessionClaims are the claims read from a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
}

// JWTSessionConfig configures JWTSessionProvider. Exactly one verification
// source is used: Secret (HS256), then JWKSURL, then the JWKS discovered from
// Issuer.
type JWTSessionConfig struct {
	Provider string
	Secret   []byte
	Issuer   string
	Audience string
	JWKSURL  string
}

// JWTSessionProvider reads the session token from SessionCookie, falling
// back to an "Authorization: Bearer" header.
type JWTSessionProvider struct {
	name    string
	secret  []byte
	jwks    *JWKSCache
	options []jwt.ParserOption
}

// NewJWTSessionProvider resolves the verification source. OIDC discovery
// runs here, once, when only an issuer is configured.
func NewJWTSessionProvider(ctx context.Context, cfg JWTSessionConfig) (*JWTSessionProvider, error) {
	p := &JWTSessionProvider{name: cfg.Provider}

	methods := []string{"RS256"}
	switch {
	case len(cfg.Secret) > 0:
		p.secret = cfg.Secret
		methods = []string{"HS256"}
	case cfg.JWKSURL != "":
		p.jwks = NewJWKSCache(cfg.JWKSURL, 0)
	case cfg.Issuer != "":
		provider, err := DiscoverOIDC(ctx, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		p.jwks = NewJWKSCache(provider.JWKSURI, 0)
	default:
		return nil, errors.New("session provider needs a secret, a JWKS URL or an issuer")
	}

	p.options = []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		p.options = append(p.options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		p.options = append(p.options, jwt.WithAudience(cfg.Audience))
	}
	return p, nil
}

func (p *JWTSessionProvider) Name() string { return p.name }

func (p *JWTSessionProvider) Authenticate(r *http.Request) (*Session, error) {
	raw := sessionToken(r)
	if raw == "" {
		return nil, ErrNoSession
	}

	var keyFunc jwt.Keyfunc
	if p.jwks != nil {
		keyFunc = p.jwks.KeyFunc(r.Context())
	} else {
		keyFunc = func(*jwt.Token) (interface{}, error) { return p.secret, nil }
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, keyFunc, p.options...)
	if err != nil {
		return nil, fmt.Errorf("verifying session token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid session token")
	}

	sess := &Session{Subject: claims.Subject, Name: claims.Name, Email: claims.Email}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SessionStage is the second gate layer. A request already authorized by
// the deep-link token passes. Without a configured provider the request is
// sent to an error page instead of a sign-in page. Otherwise a valid session
// passes and everything else is redirected to sign-in with a callback to the
// original URL.
type SessionStage struct {
	provider     SessionProvider
	tokenEnabled bool
	basePath     string
	logger       zerolog.Logger
}

// NewSessionStage creates the stage. provider may be nil.
func NewSessionStage(provider SessionProvider, tokenEnabled bool, basePath string, logger zerolog.Logger) *SessionStage {
	return &SessionStage{
		provider:     provider,
		tokenEnabled: tokenEnabled,
		basePath:     strings.TrimRight(basePath, "/"),
		logger:       logger,
	}
}

func (s *SessionStage) Name() string { return "session" }

// SignInPath is the sign-in page unauthenticated users are sent to.
func (s *SessionStage) SignInPath() string { return s.basePath + "/signin" }

func (s *SessionStage) Run(c echo.Context, st *gate.State) (gate.Result, error) {
	if s.tokenEnabled && st.Token == gate.TokenAuthorized {
		return gate.Continue, nil
	}

	if s.provider == nil {
		problem := "notfound"
		if st.Token == gate.TokenRejected {
			problem = "auth"
		}
		return gate.Halt, c.Redirect(http.StatusTemporaryRedirect, s.basePath+"/error/"+problem)
	}

	req := c.Request()
	sess, err := s.provider.Authenticate(req)
	if err == nil {
		st.Mode = gate.ModeSession
		st.Principal = sess.Subject
		return gate.Continue, nil
	}

	s.logger.Debug().Err(err).Str("path", req.URL.Path).Msg("redirecting to sign-in")
	target := s.SignInPath() + "?callbackUrl=" + url.QueryEscape(req.URL.RequestURI())
	return gate.Halt, c.Redirect(http.StatusTemporaryRedirect, target)
}

package auth

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ecr/ecrviewer/internal/platform/gate"
)

const (
	// TokenParam is the query parameter a deep link carries its token in.
	TokenParam = "auth"
	// TokenCookie holds the deep-link token after the first redirect.
	TokenCookie = "auth-token"
	// RestrictedSuffix marks the only routes a deep-link token can open.
	RestrictedSuffix = "/view-data"
)

// ParsePublicKeyPEM decodes an RSA public key in PEM form. Env files often
// carry the PEM on one line with escaped newlines, so `\n` is unescaped
// first.
func ParsePublicKeyPEM(pemText string) (*rsa.PublicKey, error) {
	pemText = strings.ReplaceAll(strings.TrimSpace(pemText), `\n`, "\n")
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
	if err != nil {
		return nil, fmt.Errorf("parsing RSA public key: %w", err)
	}
	return key, nil
}

// TokenStage is the first gate layer. It admits requests to a restricted
// route that present a deep-link token signed (RS256) by the integrating
// system's key. Verification failures are recorded on the state and never
// surfaced to the client.
type TokenStage struct {
	key    *rsa.PublicKey
	logger zerolog.Logger
}

// NewTokenStage creates the stage. A nil key disables the layer.
func NewTokenStage(key *rsa.PublicKey, logger zerolog.Logger) *TokenStage {
	return &TokenStage{key: key, logger: logger}
}

func (s *TokenStage) Name() string { return "token" }

// Enabled reports whether a verification key is configured.
func (s *TokenStage) Enabled() bool { return s.key != nil }

func (s *TokenStage) Run(c echo.Context, st *gate.State) (gate.Result, error) {
	if s.key == nil {
		st.Token = gate.TokenNotApplicable
		return gate.Continue, nil
	}

	req := c.Request()
	q := gate.ParseQuery(req.URL.RawQuery)
	if tok := q.Get(TokenParam); tok != "" {
		q.Del(TokenParam)
		c.SetCookie(&http.Cookie{
			Name:     TokenCookie,
			Value:    tok,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		st.Token = gate.TokenRedirected
		return gate.Halt, c.Redirect(http.StatusTemporaryRedirect, gate.WithQuery(req.URL.Path, q))
	}

	if !strings.HasSuffix(req.URL.Path, RestrictedSuffix) {
		st.Token = gate.TokenNotApplicable
		return gate.Continue, nil
	}

	if err := s.verify(c); err != nil {
		s.logger.Debug().Err(err).Str("path", req.URL.Path).Msg("deep-link token rejected")
		st.Token = gate.TokenRejected
		return gate.Continue, nil
	}

	st.Token = gate.TokenAuthorized
	st.Mode = gate.ModeToken
	return gate.Continue, nil
}

func (s *TokenStage) verify(c echo.Context) error {
	cookie, err := c.Cookie(TokenCookie)
	if err != nil || cookie.Value == "" {
		return fmt.Errorf("missing %s cookie", TokenCookie)
	}
	token, err := jwt.Parse(cookie.Value, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

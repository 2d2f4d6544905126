package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// SignInResponse describes how the browser should start a session.
type SignInResponse struct {
	Provider     string `json:"provider,omitempty"`
	Configured   bool   `json:"configured"`
	CallbackURL  string `json:"callback_url"`
	AuthorizeURL string `json:"authorize_url,omitempty"`
}

// SignInHandler serves the sign-in page data. Callbacks are only honored
// when they are paths on this host; anything else falls back to basePath.
func SignInHandler(provider SessionProvider, authorizeURL, basePath string) echo.HandlerFunc {
	fallback := strings.TrimRight(basePath, "/") + "/"
	return func(c echo.Context) error {
		resp := SignInResponse{CallbackURL: safeCallback(c.QueryParam("callbackUrl"), fallback)}
		if provider != nil {
			resp.Provider = provider.Name()
			resp.Configured = true
			resp.AuthorizeURL = authorizeURL
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func safeCallback(raw, fallback string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return fallback
	}
	return raw
}

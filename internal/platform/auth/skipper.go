package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicSuffixes lists routes, relative to the base path, that bypass the
// gate: the health check, the error pages and sign-in.
var publicSuffixes = []string{
	"/api/health-check",
	"/signin",
}

// publicPrefixes are matched as path prefixes under the base path.
var publicPrefixes = []string{
	"/error/",
}

// IsPublicPath reports whether path needs no authorization.
func IsPublicPath(basePath, path string) bool {
	basePath = strings.TrimRight(basePath, "/")
	rel, ok := strings.CutPrefix(path, basePath)
	if !ok {
		return false
	}
	for _, s := range publicSuffixes {
		if rel == s {
			return true
		}
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(rel, p) {
			return true
		}
	}
	return false
}

// Skipper returns an echo skipper for the public routes under basePath.
func Skipper(basePath string) func(c echo.Context) bool {
	return func(c echo.Context) bool {
		return IsPublicPath(basePath, c.Request().URL.Path)
	}
}

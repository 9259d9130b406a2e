package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass session authentication.
var publicPaths = map[string]bool{
	"/health":                  true,
	"/health/db":               true,
	"/metrics":                 true,
	"/api/register/patient":    true,
	"/api/register/researcher": true,
	"/api/login":               true,
	"/api/search/researchers":  true,
	"/api/communities":         true,
	"/api/communities/:id":     true,
	"/api/studies":             true,
	"/api/studies/:id":         true,
}

// Skipper reports whether the matched route is public.
func Skipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}

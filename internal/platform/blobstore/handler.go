package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
)

// AccessRule decides whether p may read files stored under scope, the key
// segment that follows the prefix.
type AccessRule func(ctx context.Context, p auth.Principal, scope string) error

var errFileNotFound = apperr.NotFound("file not found")

// OwnerOnly admits only the profile whose id is the scope.
func OwnerOnly(_ context.Context, p auth.Principal, scope string) error {
	if scope != p.ProfileID.String() {
		return errFileNotFound
	}
	return nil
}

// AnyUser admits every authenticated caller.
func AnyUser(context.Context, auth.Principal, string) error { return nil }

// Handler serves stored files back to authenticated clients. Keys under a
// prefix with no registered rule are never served.
type Handler struct {
	store BlobStore
	rules map[string]AccessRule
}

func NewHandler(store BlobStore) *Handler {
	return &Handler{store: store, rules: make(map[string]AccessRule)}
}

// Allow registers the rule for keys under prefix.
func (h *Handler) Allow(prefix string, rule AccessRule) *Handler {
	h.rules[prefix] = rule
	return h
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/files/*", h.Download)
}

func (h *Handler) Download(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	key := strings.TrimPrefix(c.Param("*"), "/")
	if key == "" || strings.Contains(key, "..") {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid file key")
	}

	// <prefix>/<scope>/<uuid>/<file name>
	parts := strings.SplitN(key, "/", 3)
	if len(parts) < 3 {
		return errFileNotFound
	}
	rule, ok := h.rules[parts[0]]
	if !ok {
		return errFileNotFound
	}
	if err := rule(c.Request().Context(), p, parts[1]); err != nil {
		return err
	}

	body, obj, err := h.store.Get(c.Request().Context(), key)
	if errors.Is(err, ErrBlobNotFound) {
		return errFileNotFound
	}
	if err != nil {
		return err
	}
	defer body.Close()

	if obj.FileName != "" {
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", obj.FileName))
	}
	return c.Stream(http.StatusOK, obj.ContentType, body)
}

// URL returns the API path that serves key.
func URL(key string) string {
	if key == "" {
		return ""
	}
	return "/api/files/" + key
}

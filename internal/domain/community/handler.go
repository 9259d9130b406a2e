package community

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/communities", h.List)
	api.GET("/communities/:id", h.Get)
	api.POST("/communities/create", h.Create)
	api.POST("/communities/:id/join", h.Join)
	api.DELETE("/communities/:id/leave", h.Leave)
	api.GET("/communities/:id/posts", h.Posts)
	api.POST("/communities/:id/posts/create", h.CreatePost)
	api.GET("/user/communities", h.UserCommunities)

	api.PUT("/posts/:id/update", h.UpdatePost)
	api.DELETE("/posts/:id/delete", h.DeletePost)
	api.POST("/posts/:id/like", h.Like)
	api.DELETE("/posts/:id/unlike", h.Unlike)
	api.POST("/posts/:id/comments", h.AddComment)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type contentInput struct {
	Content string `json:"content" form:"content"`
}

// -- Communities --

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.ListCommunities(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Summary{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "communities": items})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.Community(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "community": s})
}

func (h *Handler) Create(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in CreateCommunityInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	s, err := h.svc.CreateCommunity(c.Request().Context(), p, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":   true,
		"message":   "Community created successfully",
		"community": s,
	})
}

func (h *Handler) Join(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	community, m, err := h.svc.Join(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"message":    fmt.Sprintf("Successfully joined %s", community.Name),
		"membership": echo.Map{"id": m.ID, "joined_at": m.JoinedAt},
	})
}

func (h *Handler) Leave(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	community, err := h.svc.Leave(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": fmt.Sprintf("Successfully left %s", community.Name),
	})
}

func (h *Handler) UserCommunities(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	items, err := h.svc.MemberCommunities(c.Request().Context(), p)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*MemberCommunity{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "communities": items})
}

// -- Posts --

func (h *Handler) Posts(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Feed(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*FeedPost{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "posts": items})
}

// CreatePost accepts JSON or a multipart form with any number of
// "attachments" parts.
func (h *Handler) CreatePost(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in contentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	var files []*multipart.FileHeader
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if form, err := c.MultipartForm(); err == nil {
			files = form.File["attachments"]
		}
	}

	post, err := h.svc.CreatePost(c.Request().Context(), p, id, in.Content, files)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Post created successfully",
		"post":    post,
	})
}

func (h *Handler) UpdatePost(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in contentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	post, err := h.svc.UpdatePost(c.Request().Context(), p, id, in.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Post updated successfully",
		"post":    echo.Map{"id": post.ID, "content": post.Content, "updated_at": post.UpdatedAt},
	})
}

func (h *Handler) DeletePost(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePost(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Post deleted successfully"})
}

func (h *Handler) Like(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Like(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Post liked successfully"})
}

func (h *Handler) Unlike(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Unlike(c.Request().Context(), p, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Post unliked successfully"})
}

func (h *Handler) AddComment(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in contentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	comment, err := h.svc.AddComment(c.Request().Context(), p, id, in.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Comment added successfully",
		"comment": comment,
	})
}

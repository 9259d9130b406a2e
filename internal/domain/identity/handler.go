package identity

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/auth"
)

// SessionOptions configures how login hands the session token to the client.
type SessionOptions struct {
	Issuer      *auth.SessionIssuer
	Revocations auth.RevocationStore
	CookieName  string
	Secure      bool
}

type Handler struct {
	svc      *Service
	sessions SessionOptions
}

func NewHandler(svc *Service, sessions SessionOptions) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/register/patient", h.RegisterPatient)
	api.POST("/register/researcher", h.RegisterResearcher)
	api.POST("/login", h.Login)
	api.GET("/search/researchers", h.SearchResearchers)

	api.POST("/logout", h.Logout)
	api.GET("/user", h.Me)
	api.GET("/profile", h.Profile)
	api.PUT("/profile/update", h.UpdateProfile)
	api.POST("/profile/upload-picture", h.UploadPicture)

	researcher := api.Group("", auth.RequireRole(auth.RoleResearcher))
	researcher.GET("/search/patients", h.SearchPatients)
}

// startSession issues a token for p, sets the session cookie and returns
// the token for clients that send it as a bearer header.
func (h *Handler) startSession(c echo.Context, p *Profile) (string, error) {
	token, claims, err := h.sessions.Issuer.Issue(p.Principal())
	if err != nil {
		return "", err
	}
	c.SetCookie(&http.Cookie{
		Name:     h.sessions.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HttpOnly: true,
		Secure:   h.sessions.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func (h *Handler) clearSession(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.sessions.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.sessions.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// -- Registration / Session --

func (h *Handler) RegisterPatient(c echo.Context) error {
	var in RegisterPatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	p, err := h.svc.RegisterPatient(c.Request().Context(), in)
	if err != nil {
		return err
	}
	token, err := h.startSession(c, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Patient registration successful",
		"user":    newUser(p),
		"token":   token,
	})
}

func (h *Handler) RegisterResearcher(c echo.Context) error {
	var in RegisterResearcherInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	p, err := h.svc.RegisterResearcher(c.Request().Context(), in)
	if err != nil {
		return err
	}
	token, err := h.startSession(c, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Researcher registration successful",
		"user":    newUser(p),
		"token":   token,
	})
}

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	login := req.UsernameOrEmail
	if strings.TrimSpace(login) == "" {
		login = req.Username
	}

	ctx := c.Request().Context()
	p, err := h.svc.Authenticate(ctx, login, req.Password)
	if err != nil {
		return err
	}
	user, err := h.svc.SessionUser(ctx, p)
	if err != nil {
		return err
	}
	token, err := h.startSession(c, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Login successful",
		"user":    user,
		"token":   token,
	})
}

// Logout revokes the current session token until it would have expired.
func (h *Handler) Logout(c echo.Context) error {
	claims, ok := auth.ClaimsFromContext(c.Request().Context())
	if ok && h.sessions.Revocations != nil {
		if err := h.sessions.Revocations.Revoke(c.Request().Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			return err
		}
	}
	h.clearSession(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Logout successful"})
}

func (h *Handler) Me(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Me(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": u})
}

// -- Profile --

func (h *Handler) Profile(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Profile(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "profile": v})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	var in UpdateProfileInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON data")
	}
	if err := h.svc.UpdateProfile(c.Request().Context(), p, in); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Profile updated successfully"})
}

func (h *Handler) UploadPicture(c echo.Context) error {
	p, err := auth.Current(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("profile_picture")
	if err != nil {
		fh = nil
	}
	url, err := h.svc.UploadPicture(c.Request().Context(), p, fh)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":             true,
		"message":             "Profile picture uploaded successfully",
		"profile_picture_url": url,
	})
}

// -- Search --

func (h *Handler) SearchPatients(c echo.Context) error {
	items, err := h.svc.SearchPatients(c.Request().Context(),
		c.QueryParam("condition"), c.QueryParam("gender"), c.QueryParam("ageRange"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "patients": items})
}

func (h *Handler) SearchResearchers(c echo.Context) error {
	items, err := h.svc.SearchResearchers(c.Request().Context(),
		c.QueryParam("condition"), c.QueryParam("location"), c.QueryParam("studyPhase"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "researchers": items})
}

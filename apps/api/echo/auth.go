package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/user"
)

const (
	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

func newJWTConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	RollNumber string `json:"roll_number,omitempty"`
	Role       string `json:"role,omitempty"`
}

type authenticator struct {
	conf  *core.Config
	users *user.Service
}

func newAuthenticator(conf *core.Config, users *user.Service) authenticator {
	return authenticator{conf: conf, users: users}
}

func (a authenticator) claims(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		RollNumber: usr.RollNumber,
		Role:       usr.Role,
	}
}

// GenerateToken generates a signed JWT token string for the user.
func (a authenticator) GenerateToken(usr user.User) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), a.claims(usr))
	ss, err := token.SignedString([]byte(a.conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextUser returns the user loaded by requireRole.
func contextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}

// Handlers

type (
	LoginRequest struct {
		RollNumber string `json:"roll_number"`
		Password   string `json:"password"`
	}

	LoginResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}

	SeedAdminRequest struct {
		SeedKey string `json:"seed_key"`
	}
)

type authAPI struct {
	auth  authenticator
	users *user.Service
	conf  *core.Config
}

func registerAuthAPI(g *echo.Group, auth authenticator, opts *Options) {
	api := authAPI{auth: auth, users: opts.Users, conf: opts.Conf}

	ag := g.Group("/auth")
	ag.POST("/seed-admin", api.seedAdmin)
	ag.POST("/login", api.login)
}

func (api *authAPI) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	usr, err := api.users.Authenticate(ctx.Request().Context(), data.RollNumber, data.Password)
	if err != nil {
		return err
	}
	token, err := api.auth.GenerateToken(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: usr})
}

func (api *authAPI) seedAdmin(ctx echo.Context) error {
	var data SeedAdminRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SeedAdminRequest")
	}
	usr, created, err := api.users.SeedAdmin(ctx.Request().Context(), data.SeedKey, api.conf.Admin)
	if err != nil {
		return err
	}
	if !created {
		return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "message": "Admin already exists"})
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"ok": true, "message": "Admin seeded", "roll_number": usr.RollNumber})
}

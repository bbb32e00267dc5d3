package echoapi

import (
	"context"
	"mime/multipart"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
)

type (
	// FileStore keeps the files uploaded with submissions.
	FileStore interface {
		Save(fh *multipart.FileHeader) (*group.FileRef, error)
		Remove(refs ...*group.FileRef)
		Dir() string
	}

	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Pinger         core.Pinger
		Users          *user.Service
		Groups         *group.Service
		Files          FileStore
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.Secure())
	s.app.Use(middleware.CORS())
	if conf.Server.BodyLimit != "" {
		s.app.Use(middleware.BodyLimit(conf.Server.BodyLimit))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	if conf.Uploads.URLPrefix != "" {
		s.app.Static(conf.Uploads.URLPrefix, s.opts.Files.Dir())
	}

	api := s.app.Group("/api")
	api.GET("/health", s.health)

	jwt := middleware.JWTWithConfig(newJWTConfig(conf.SecretKey))
	auth := newAuthenticator(conf, s.opts.Users)

	registerAuthAPI(api, auth, s.opts)
	registerStudentAPI(api.Group("/student", jwt, auth.requireRole(user.RoleStudent)), s.opts)
	registerTeacherAPI(api.Group("/teacher", jwt, auth.requireRole(user.RoleTeacher)), s.opts)
	registerAdminAPI(api.Group("/admin", jwt, auth.requireRole(user.RoleAdmin)), s.opts)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Conf.Server.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) health(ctx echo.Context) error {
	if s.opts.Pinger != nil {
		if err := s.opts.Pinger.Ping(ctx.Request().Context()); err != nil {
			s.opts.Logger.Error("health check failed", err)
			return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"ok": false, "name": s.opts.Conf.AppName})
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "name": s.opts.Conf.AppName})
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Formify API!")
}

package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/services/filestore"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "Forbidden")
)

// sentinelCodes maps domain errors to their HTTP status.
var sentinelCodes = map[error]int{
	core.ErrForbidden:             http.StatusForbidden,
	user.ErrInvalidSeedKey:        http.StatusForbidden,
	group.ErrNotSupervisor:        http.StatusForbidden,
	user.ErrInvalidCredential:     http.StatusUnauthorized,
	user.ErrNotFound:              http.StatusNotFound,
	user.ErrTeacherNotFound:       http.StatusNotFound,
	user.ErrStudentNotFound:       http.StatusNotFound,
	group.ErrNotFound:             http.StatusNotFound,
	group.ErrNoGroupForStudent:    http.StatusNotFound,
	group.ErrSubmissionNotFound:   http.StatusNotFound,
	group.ErrNoSubmissionToAttach: http.StatusNotFound,
	user.ErrRollNumberExists:      http.StatusConflict,
	group.ErrAmbiguousMatch:       http.StatusConflict,
	group.ErrAlreadyGrouped:       http.StatusConflict,
	group.ErrNoCapacity:           http.StatusConflict,
	filestore.ErrFileTooLarge:     http.StatusRequestEntityTooLarge,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if c, ok := sentinelCodes[cause]; ok {
				code = c
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if u, ok := ctx.Get(contextUserKey).(user.User); ok {
				usr = u
			} else if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.RollNumber = claims.RollNumber
			}
			logger.Error(msg, errors.Wrap(err, msg), usr, map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			})
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

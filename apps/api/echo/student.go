package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
)

type studentAPI struct {
	users  *user.Service
	groups *group.Service
	files  FileStore
}

func registerStudentAPI(g *echo.Group, opts *Options) {
	api := studentAPI{users: opts.Users, groups: opts.Groups, files: opts.Files}

	g.GET("/me", api.myGroup)
	g.GET("/submissions/latest", api.latestSubmission)
	g.GET("/teachers", api.listTeachers)
	g.POST("/submit", api.submit)
	g.POST("/upload", api.upload)
}

func (api *studentAPI) myGroup(ctx echo.Context) error {
	student, err := contextUser(ctx)
	if err != nil {
		return err
	}
	view, err := api.groups.MyGroup(ctx.Request().Context(), student)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"group": view})
}

func (api *studentAPI) latestSubmission(ctx echo.Context) error {
	student, err := contextUser(ctx)
	if err != nil {
		return err
	}
	sub, err := api.groups.LatestSubmission(ctx.Request().Context(), student)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"submission": sub})
}

func (api *studentAPI) listTeachers(ctx echo.Context) error {
	teachers, err := api.users.ListTeachers(ctx.Request().Context(), "name")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"teachers": teachers})
}

// saveFiles stores the `synopsis` and `presentation` uploads of a multipart request, if any.
func (api *studentAPI) saveFiles(ctx echo.Context) (group.Files, error) {
	var files group.Files
	if !strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return files, nil
	}

	slots := []struct {
		field string
		ref   **group.FileRef
	}{
		{"synopsis", &files.Synopsis},
		{"presentation", &files.Presentation},
	}
	for _, slot := range slots {
		fh, err := ctx.FormFile(slot.field)
		if err == http.ErrMissingFile {
			continue
		}
		if err == nil {
			*slot.ref, err = api.files.Save(fh)
		}
		if err != nil {
			api.files.Remove(files.Synopsis, files.Presentation)
			return group.Files{}, errors.Wrapf(err, "saving %s", slot.field)
		}
	}
	return files, nil
}

func (api *studentAPI) submit(ctx echo.Context) error {
	student, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var form group.SubmissionForm
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to SubmissionForm")
	}
	files, err := api.saveFiles(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	res, err := api.groups.Submit(rctx, student, form, files)
	if err != nil {
		// conflicting forms keep their files in the orphaned submission
		if res.SubmissionID == "" {
			api.files.Remove(files.Synopsis, files.Presentation)
		}
		return err
	}

	view, err := api.groups.MyGroup(rctx, student)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"group": view, "submission_id": res.SubmissionID})
}

func (api *studentAPI) upload(ctx echo.Context) error {
	student, err := contextUser(ctx)
	if err != nil {
		return err
	}
	files, err := api.saveFiles(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	sub, err := api.groups.AttachFiles(rctx, student, files)
	if err != nil {
		api.files.Remove(files.Synopsis, files.Presentation)
		return err
	}

	view, err := api.groups.MyGroup(rctx, student)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"group": view, "submission_id": sub.ID})
}

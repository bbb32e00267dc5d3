package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
)

var errMarksRequired = core.NewFieldError("marks", "marks must be a number between 0 and 100")

type (
	StudentMarkRequest struct {
		Marks *float64 `json:"marks"`
	}

	GroupMarkRequest struct {
		Marks   *float64 `json:"marks"`
		Remarks string   `json:"remarks"`
	}
)

type teacherAPI struct {
	groups *group.Service
}

func registerTeacherAPI(g *echo.Group, opts *Options) {
	api := teacherAPI{groups: opts.Groups}

	g.GET("/groups", api.listGroups)

	gg := g.Group("/groups/:groupId")
	gg.GET("/submissions/latest", api.latestSubmission)
	gg.GET("/submissions", api.submissions)
	gg.GET("/marks", api.marks)
	gg.PATCH("/marks/:studentId", api.upsertStudentMark)
	gg.PUT("/group-mark", api.upsertGroupMark)
}

func (api *teacherAPI) listGroups(ctx echo.Context) error {
	teacher, err := contextUser(ctx)
	if err != nil {
		return err
	}
	grps, err := api.groups.ListSupervisedGroups(ctx.Request().Context(), teacher)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"groups": grps})
}

func (api *teacherAPI) latestSubmission(ctx echo.Context) error {
	teacher, err := contextUser(ctx)
	if err != nil {
		return err
	}
	sub, err := api.groups.LatestGroupSubmission(ctx.Request().Context(), teacher, ctx.Param("groupId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"submission": sub})
}

func (api *teacherAPI) submissions(ctx echo.Context) error {
	teacher, err := contextUser(ctx)
	if err != nil {
		return err
	}
	subs, err := api.groups.SupervisedGroupSubmissions(ctx.Request().Context(), teacher, ctx.Param("groupId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"submissions": subs})
}

func (api *teacherAPI) marks(ctx echo.Context) error {
	teacher, err := contextUser(ctx)
	if err != nil {
		return err
	}
	view, err := api.groups.GroupMarks(ctx.Request().Context(), teacher, ctx.Param("groupId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *teacherAPI) upsertStudentMark(ctx echo.Context) error {
	teacher, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data StudentMarkRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentMarkRequest")
	}
	if data.Marks == nil {
		return errMarksRequired
	}
	mark, err := api.groups.UpsertStudentMark(ctx.Request().Context(), teacher, ctx.Param("groupId"), ctx.Param("studentId"), *data.Marks)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"mark": mark})
}

func (api *teacherAPI) upsertGroupMark(ctx echo.Context) error {
	teacher, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data GroupMarkRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GroupMarkRequest")
	}
	if data.Marks == nil {
		return errMarksRequired
	}
	mark, err := api.groups.UpsertGroupMark(ctx.Request().Context(), teacher, ctx.Param("groupId"), *data.Marks, data.Remarks)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"mark": mark})
}

package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
)

type (
	CapacityRequest struct {
		TeacherCapacity *int `json:"teacher_capacity"`
	}

	ResetSupervisorRequest struct {
		Reason string `json:"reason"`
	}
)

type adminAPI struct {
	users    *user.Service
	groups   *group.Service
	validate *validator.Validate
}

func registerAdminAPI(g *echo.Group, opts *Options) {
	api := adminAPI{users: opts.Users, groups: opts.Groups, validate: opts.Validate}

	g.POST("/users", api.createUser)

	g.GET("/teachers", api.listTeachers)
	g.PATCH("/teachers/:teacherId/capacity", api.updateTeacherCapacity)
	g.PATCH("/teachers/:teacherId", api.updateTeacher)
	g.DELETE("/teachers/:teacherId", api.deleteTeacher)

	g.GET("/students", api.listStudents)
	g.PATCH("/students/:studentId", api.updateStudent)
	g.DELETE("/students/:studentId", api.deleteStudent)

	g.GET("/groups", api.listGroups)
	g.GET("/groups/flagged", api.listFlaggedGroups)
	g.GET("/groups/:groupId/submissions", api.groupSubmissions)
	g.PATCH("/groups/:groupId/reset-supervisor", api.resetSupervisor)
	g.PATCH("/groups/:groupId/override-supervisor", api.overrideSupervisor)
	g.DELETE("/groups/:groupId", api.deleteGroup)

	g.GET("/submissions", api.allSubmissions)
	g.GET("/submissions/orphans", api.orphanedSubmissions)
	g.GET("/override-logs", api.overrideLogs)
}

// Users

func (api *adminAPI) createUser(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.users.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"user": usr})
}

func (api *adminAPI) listTeachers(ctx echo.Context) error {
	teachers, err := api.users.ListTeachers(ctx.Request().Context(), "roll_number")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"teachers": teachers})
}

func (api *adminAPI) updateTeacherCapacity(ctx echo.Context) error {
	var data CapacityRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CapacityRequest")
	}
	if data.TeacherCapacity == nil {
		return user.ErrInvalidCapacity
	}
	teacher, err := api.users.UpdateTeacherCapacity(ctx.Request().Context(), ctx.Param("teacherId"), *data.TeacherCapacity)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"teacher": teacher})
}

func (api *adminAPI) updateTeacher(ctx echo.Context) error {
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	rctx := ctx.Request().Context()
	teacher, err := api.users.GetTeacher(rctx, ctx.Param("teacherId"))
	if err != nil {
		return err
	}
	if err = data.Validate(teacher, api.validate); err != nil {
		return err
	}
	if teacher, err = api.users.Update(rctx, teacher, data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"teacher": teacher})
}

func (api *adminAPI) deleteTeacher(ctx echo.Context) error {
	if err := api.groups.DeleteTeacher(ctx.Request().Context(), ctx.Param("teacherId")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Teacher deleted"})
}

func (api *adminAPI) listStudents(ctx echo.Context) error {
	students, err := api.users.ListStudents(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"students": students})
}

func (api *adminAPI) updateStudent(ctx echo.Context) error {
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	student, err := api.groups.UpdateStudent(ctx.Request().Context(), ctx.Param("studentId"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"student": student})
}

func (api *adminAPI) deleteStudent(ctx echo.Context) error {
	if err := api.groups.DeleteStudent(ctx.Request().Context(), ctx.Param("studentId")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Student deleted"})
}

// Groups

func (api *adminAPI) listGroups(ctx echo.Context) error {
	grps, err := api.groups.ListGroups(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"groups": grps})
}

func (api *adminAPI) listFlaggedGroups(ctx echo.Context) error {
	grps, err := api.groups.ListFlaggedGroups(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"groups": grps})
}

func (api *adminAPI) groupSubmissions(ctx echo.Context) error {
	subs, err := api.groups.GroupSubmissions(ctx.Request().Context(), ctx.Param("groupId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"submissions": subs})
}

func (api *adminAPI) resetSupervisor(ctx echo.Context) error {
	var data ResetSupervisorRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetSupervisorRequest")
	}
	grp, err := api.groups.ResetSupervisor(ctx.Request().Context(), ctx.Param("groupId"), data.Reason)
	if err != nil {
		return err
	}
	return api.groupResponse(ctx, grp)
}

func (api *adminAPI) overrideSupervisor(ctx echo.Context) error {
	admin, err := contextUser(ctx)
	if err != nil {
		return err
	}
	var data group.OverrideSupervisor
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OverrideSupervisor")
	}
	grp, err := api.groups.OverrideSupervisor(ctx.Request().Context(), admin, ctx.Param("groupId"), data)
	if err != nil {
		return err
	}
	return api.groupResponse(ctx, grp)
}

// groupResponse renders the group with its users populated.
func (api *adminAPI) groupResponse(ctx echo.Context, grp group.Group) error {
	view, err := api.groups.View(ctx.Request().Context(), grp)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"group": view})
}

func (api *adminAPI) deleteGroup(ctx echo.Context) error {
	if err := api.groups.DeleteGroup(ctx.Request().Context(), ctx.Param("groupId")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Group deleted"})
}

// Submissions & logs

func (api *adminAPI) allSubmissions(ctx echo.Context) error {
	subs, err := api.groups.AllSubmissions(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"submissions": subs})
}

func (api *adminAPI) orphanedSubmissions(ctx echo.Context) error {
	subs, err := api.groups.OrphanedSubmissions(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"submissions": subs})
}

func (api *adminAPI) overrideLogs(ctx echo.Context) error {
	logs, err := api.groups.ListOverrideLogs(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"logs": logs})
}

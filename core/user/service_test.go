package user_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/tests"
)

func TestService_Create(t *testing.T) {
	app := testutil.NewApp(t)

	nu := user.NewUser{RollNumber: " t-01 ", Name: " Teacher ", Password: testutil.Password, Role: user.RoleTeacher, TeacherCapacity: 4}
	require.NoError(t, nu.Validate(app.Validate))
	usr, err := app.Users.Create(ctx, nu)
	require.NoError(t, err)
	assert.Equal(t, "T-01", usr.RollNumber)
	assert.Equal(t, "Teacher", usr.Name)
	assert.Equal(t, 4, usr.TeacherCapacity)
	assert.NoError(t, usr.CheckPassword(testutil.Password))

	_, err = app.Users.Create(ctx, user.NewUser{RollNumber: "t-01", Name: "Other", Password: testutil.Password, Role: user.RoleStudent})
	assert.ErrorIs(t, err, user.ErrRollNumberExists)

	nu = user.NewUser{RollNumber: "S1", Name: "Student", Password: testutil.Password, Role: user.RoleStudent, TeacherCapacity: 4}
	require.NoError(t, nu.Validate(app.Validate))
	assert.Zero(t, nu.TeacherCapacity, "only teachers have a capacity")
}

func TestNewUser_Validate(t *testing.T) {
	validate, translator := testutil.NewValidate()

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
		wantMsg   string
	}{
		{name: "valid", nu: user.NewUser{RollNumber: "R1", Name: "N", Password: testutil.Password, Role: user.RoleAdmin}},
		{name: "bad role", nu: user.NewUser{RollNumber: "R1", Name: "N", Password: testutil.Password, Role: "Dean"}, wantField: "role", wantMsg: "role must be one of Student, Teacher, Admin"},
		{name: "bad roll", nu: user.NewUser{RollNumber: "R 1", Name: "N", Password: testutil.Password, Role: user.RoleAdmin}, wantField: "roll_number", wantMsg: "only letters, digits, dashes and slashes are allowed"},
		{name: "short password", nu: user.NewUser{RollNumber: "R1", Name: "N", Password: "Ab1!", Role: user.RoleAdmin}, wantField: "password", wantMsg: "password must contain at least 8 characters"},
		{name: "numeric password", nu: user.NewUser{RollNumber: "R1", Name: "N", Password: "1234567890", Role: user.RoleAdmin}, wantField: "password", wantMsg: "password cannot be entirely numeric"},
		{name: "simple password", nu: user.NewUser{RollNumber: "R1", Name: "N", Password: "abcdefghij", Role: user.RoleAdmin}, wantField: "password", wantMsg: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"},
		{name: "password like roll", nu: user.NewUser{RollNumber: "CS-2021-17", Name: "N", Password: "Cs-2021-17!", Role: user.RoleAdmin}, wantField: "password", wantMsg: "password cannot be similar to the name or roll number"},
		{name: "missing name", nu: user.NewUser{RollNumber: "R1", Password: testutil.Password, Role: user.RoleAdmin}, wantField: "name", wantMsg: "this field is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			got := testutil.TranslateErrors(t, err, translator)
			assert.Equal(t, tt.wantMsg, got[tt.wantField])
		})
	}
}

func TestUpdateUser_Validate(t *testing.T) {
	validate, _ := testutil.NewValidate()
	teacher := user.User{Role: user.RoleTeacher}
	student := user.User{Role: user.RoleStudent}
	str := func(s string) *string { return &s }
	num := func(n int) *int { return &n }

	tests := []struct {
		name    string
		orig    user.User
		uu      user.UpdateUser
		wantErr bool
	}{
		{name: "nothing", orig: student, uu: user.UpdateUser{Name: str("  ")}, wantErr: true},
		{name: "blank roll", orig: student, uu: user.UpdateUser{RollNumber: str(" ")}, wantErr: true},
		{name: "negative capacity", orig: teacher, uu: user.UpdateUser{TeacherCapacity: num(-1)}, wantErr: true},
		{name: "capacity ignored for students", orig: student, uu: user.UpdateUser{TeacherCapacity: num(3)}, wantErr: true},
		{name: "capacity", orig: teacher, uu: user.UpdateUser{TeacherCapacity: num(3)}},
		{name: "name", orig: student, uu: user.UpdateUser{Name: str(" New ")}},
		{name: "weak password", orig: student, uu: user.UpdateUser{Password: str("password")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.uu.Validate(tt.orig, validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	app := testutil.NewApp(t)
	usr := testutil.CreateStudent(t, app.UserRepo, "S1")

	tests := []struct {
		name    string
		roll    string
		pwd     string
		wantErr error
	}{
		{name: "missing", roll: "", pwd: "", wantErr: nil},
		{name: "unknown roll", roll: "S2", pwd: testutil.Password, wantErr: user.ErrInvalidCredential},
		{name: "wrong password", roll: "S1", pwd: "nope", wantErr: user.ErrInvalidCredential},
		{name: "valid", roll: " s1 ", pwd: testutil.Password},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := app.Users.Authenticate(ctx, tt.roll, tt.pwd)
			switch {
			case tt.roll == "":
				assert.True(t, core.IsValidationError(err))
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, usr.ID, got.ID)
			}
		})
	}
}

func TestService_SeedAdmin(t *testing.T) {
	app := testutil.NewApp(t)
	conf := core.AdminConfig{SeedKey: "seed", Roll: "admin", Name: "Admin", Password: testutil.Password}

	_, _, err := app.Users.SeedAdmin(ctx, "wrong", conf)
	assert.ErrorIs(t, err, user.ErrInvalidSeedKey)
	_, _, err = app.Users.SeedAdmin(ctx, "", core.AdminConfig{})
	assert.ErrorIs(t, err, user.ErrInvalidSeedKey)

	admin, created, err := app.Users.SeedAdmin(ctx, "seed", conf)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ADMIN", admin.RollNumber)
	assert.True(t, admin.IsAdmin())

	again, created, err := app.Users.SeedAdmin(ctx, "seed", conf)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)
}

func TestService_roleLookups(t *testing.T) {
	app := testutil.NewApp(t)
	teacher := testutil.CreateTeacher(t, app.UserRepo, "T1", 1)
	student := testutil.CreateStudent(t, app.UserRepo, "S1")

	_, err := app.Users.GetTeacher(ctx, student.ID)
	assert.ErrorIs(t, err, user.ErrTeacherNotFound)
	_, err = app.Users.GetStudent(ctx, teacher.ID)
	assert.ErrorIs(t, err, user.ErrStudentNotFound)
	_, err = app.Users.GetStudent(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrStudentNotFound)

	got, err := app.Users.GetTeachers(ctx, "missing", teacher.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, []user.User{teacher}, got)

	_, err = app.Users.UpdateTeacherCapacity(ctx, teacher.ID, -1)
	assert.ErrorIs(t, err, user.ErrInvalidCapacity)
	updated, err := app.Users.UpdateTeacherCapacity(ctx, teacher.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.TeacherCapacity)
}

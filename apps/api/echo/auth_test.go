package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/tests"
)

func TestHome(t *testing.T) {
	f := setup(t)

	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Formify API!", rec.Body.String())

	f.run(t, []httpTest{
		{name: "health", path: "/api/health", wantData: []byte(`{"ok":true,"name":"formify"}`)},
	})
}

func TestAuthAPI_login(t *testing.T) {
	f := setup(t)
	student := testutil.CreateStudent(t, f.UserRepo, "2101")

	f.run(t, []httpTest{
		{
			name: "missing credentials", method: http.MethodPost, path: "/api/auth/login",
			body:     []byte(`{"roll_number":"2101"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"error":"rollNumber and password are required"}`),
		},
		{
			name: "unknown roll", method: http.MethodPost, path: "/api/auth/login",
			body:     []byte(`{"roll_number":"9999","password":"` + testutil.Password + `"}`),
			wantCode: http.StatusUnauthorized, wantData: []byte(`{"error":"Invalid credentials"}`),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/auth/login",
			body:     []byte(`{"roll_number":"2101","password":"nope"}`),
			wantCode: http.StatusUnauthorized, wantData: []byte(`{"error":"Invalid credentials"}`),
		},
	})

	t.Run("success", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/auth/login", "", []byte(`{"roll_number":" 2101 ","password":"`+testutil.Password+`"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		res := decode(t, rec)
		assert.NotEmpty(t, res["token"])
		usr := res["user"].(map[string]interface{})
		assert.Equal(t, student.ID, usr["id"])
		assert.NotContains(t, usr, "password_hash")

		// the issued token opens the student API
		token := res["token"].(string)
		rec = f.do(http.MethodGet, "/api/student/me", token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"group":null}`, rec.Body.String())
	})
}

func TestAuthAPI_seedAdmin(t *testing.T) {
	f := setup(t)

	f.run(t, []httpTest{
		{
			name: "wrong key", method: http.MethodPost, path: "/api/auth/seed-admin", body: []byte(`{"seed_key":"lol"}`),
			wantCode: http.StatusForbidden, wantData: []byte(`{"error":"Invalid seed key"}`),
		},
		{
			name: "seeded", method: http.MethodPost, path: "/api/auth/seed-admin", body: []byte(`{"seed_key":"seed-me"}`),
			wantCode: http.StatusCreated, wantData: []byte(`{"ok":true,"message":"Admin seeded","roll_number":"ADMIN"}`),
		},
		{
			name: "already seeded", method: http.MethodPost, path: "/api/auth/seed-admin", body: []byte(`{"seed_key":"seed-me"}`),
			wantData: []byte(`{"ok":true,"message":"Admin already exists"}`),
		},
	})

	admin, err := f.Users.GetByRollNumber(context.Background(), "ADMIN")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
}

func TestRoleGuard(t *testing.T) {
	f := setup(t)
	student := testutil.CreateStudent(t, f.UserRepo, "2101")
	gone := testutil.CreateStudent(t, f.UserRepo, "2102")
	goneToken := f.token(t, gone)
	require.NoError(t, f.Users.Delete(context.Background(), gone.ID))

	studentToken := f.token(t, student)
	f.run(t, []httpTest{
		{name: "token required", path: "/api/admin/groups", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "invalid token", path: "/api/admin/groups", token: "not.a.token",
			wantCode: http.StatusUnauthorized, wantData: []byte(`{"error":"invalid or expired jwt"}`),
		},
		{
			name: "deleted user", path: "/api/student/me", token: goneToken,
			wantCode: http.StatusUnauthorized, wantData: []byte(`{"error":"user not authenticated"}`),
		},
		{
			name: "admin route", path: "/api/admin/groups", token: studentToken,
			wantCode: http.StatusForbidden, wantData: []byte(`{"error":"Forbidden"}`),
		},
		{
			name: "teacher route", path: "/api/teacher/groups", token: studentToken,
			wantCode: http.StatusForbidden, wantData: []byte(`{"error":"Forbidden"}`),
		},
		{name: "own route", path: "/api/student/me", token: studentToken, wantData: []byte(`{"group":null}`)},
	})
}

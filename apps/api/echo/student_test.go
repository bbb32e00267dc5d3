package echoapi

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/tests"
)

type studentFixture struct {
	*fixture
	t1, t2, t3 user.User
	s1, s2, s3 user.User
}

func setupStudents(t *testing.T) *studentFixture {
	f := setup(t)
	return &studentFixture{
		fixture: f,
		t1:      testutil.CreateTeacher(t, f.UserRepo, "T1", 1),
		t2:      testutil.CreateTeacher(t, f.UserRepo, "T2", 1),
		t3:      testutil.CreateTeacher(t, f.UserRepo, "T3", 1),
		s1:      testutil.CreateStudent(t, f.UserRepo, "2101"),
		s2:      testutil.CreateStudent(t, f.UserRepo, "2102"),
		s3:      testutil.CreateStudent(t, f.UserRepo, "2103"),
	}
}

// submitJSON submits the form of `student` naming the two teammates, preferring T1, T2 then T3.
func (f *studentFixture) submitJSON(t *testing.T, student user.User, member1, member2 string) map[string]interface{} {
	t.Helper()
	sf := testutil.Form(student.RollNumber, member1, member2, f.t1, f.t2, f.t3)
	rec := f.do(http.MethodPost, "/api/student/submit", f.token(t, student), marshallObj(t, sf))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func TestStudentAPI_submit(t *testing.T) {
	f := setupStudents(t)

	res := f.submitJSON(t, f.s1, "2102", "2103")
	assert.NotEmpty(t, res["submission_id"])
	grp := res["group"].(map[string]interface{})
	state := grp["state"].(map[string]interface{})
	assert.Equal(t, "Allocated", state["status"])
	assert.Equal(t, f.t1.ID, state["assigned_supervisor"])
	assert.Equal(t, []interface{}{"2101"}, grp["member_roll_numbers"])
	assert.ElementsMatch(t, []interface{}{"2102", "2103"}, grp["expected_partner_roll_numbers"])
	assert.Equal(t, f.t1.Name, grp["supervisor"].(map[string]interface{})["name"])

	t.Run("teammate joins with multipart form and files", func(t *testing.T) {
		sf := testutil.Form(f.s2.RollNumber, "2101", "2103", f.t1, f.t2, f.t3)
		req := newMultipartRequest(t, "/api/student/submit", f.token(t, f.s2), &sf,
			upload{field: "synopsis", name: "synopsis.pdf", content: []byte("%PDF-1.4")})
		rec := f.serve(req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		joined := decode(t, rec)["group"].(map[string]interface{})
		assert.Equal(t, grp["group_id"], joined["group_id"])
		assert.Equal(t, []interface{}{"2101", "2102"}, joined["member_roll_numbers"])

		rec = f.do(http.MethodGet, "/api/student/submissions/latest", f.token(t, f.s2))
		require.Equal(t, http.StatusOK, rec.Code)
		sub := decode(t, rec)["submission"].(map[string]interface{})
		file := sub["synopsis_file"].(map[string]interface{})
		assert.Equal(t, "synopsis.pdf", file["original_name"])
		assert.FileExists(t, filepath.Join(f.files.Dir(), file["filename"].(string)))
	})

	t.Run("supervisor full for a second group", func(t *testing.T) {
		s4 := testutil.CreateStudent(t, f.UserRepo, "2104")
		res := f.submitJSON(t, s4, "2105", "2106")
		state := res["group"].(map[string]interface{})["state"].(map[string]interface{})
		assert.Equal(t, f.t2.ID, state["assigned_supervisor"])
	})
}

func TestStudentAPI_submitValidation(t *testing.T) {
	f := setupStudents(t)
	token := f.token(t, f.s1)

	sf := testutil.Form(f.s1.RollNumber, "2102", "2103", f.t1, f.t2, f.t3)
	sf.Name = ""
	sf.Agreement = false
	rec := f.do(http.MethodPost, "/api/student/submit", token, marshallObj(t, sf))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res := decode(t, rec)
	assert.Equal(t, "this field is required", res["name"])
	assert.Contains(t, res, "agreement")

	sf = testutil.Form(f.s1.RollNumber, "2101", "2103", f.t1, f.t2, f.t3)
	rec = f.do(http.MethodPost, "/api/student/submit", token, marshallObj(t, sf))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"member1_roll":"Group member roll numbers cannot include your own roll number"}`, rec.Body.String())
}

func TestStudentAPI_upload(t *testing.T) {
	f := setupStudents(t)
	token := f.token(t, f.s1)

	t.Run("before submitting", func(t *testing.T) {
		req := newMultipartRequest(t, "/api/student/upload", token, nil,
			upload{field: "presentation", name: "slides.pptx", content: []byte("slides")})
		rec := f.serve(req)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		entries, err := os.ReadDir(f.files.Dir())
		require.NoError(t, err)
		assert.Empty(t, entries, "rejected uploads are removed")
	})

	f.submitJSON(t, f.s1, "2102", "2103")

	t.Run("no files", func(t *testing.T) {
		rec := f.serve(newMultipartRequest(t, "/api/student/upload", token, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Upload at least one file: synopsis or presentation"}`, rec.Body.String())
	})

	t.Run("too large", func(t *testing.T) {
		big := make([]byte, f.conf.Uploads.MaxFileSize+1)
		rec := f.serve(newMultipartRequest(t, "/api/student/upload", token, nil,
			upload{field: "synopsis", name: "big.pdf", content: big}))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("attached", func(t *testing.T) {
		rec := f.serve(newMultipartRequest(t, "/api/student/upload", token, nil,
			upload{field: "presentation", name: "slides.pptx", content: []byte("slides")}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotEmpty(t, decode(t, rec)["submission_id"])

		rec = f.do(http.MethodGet, "/api/student/submissions/latest", token)
		sub := decode(t, rec)["submission"].(map[string]interface{})
		file := sub["presentation_file"].(map[string]interface{})
		assert.Equal(t, "slides.pptx", file["original_name"])

		// served under the uploads prefix
		rec = f.do(http.MethodGet, file["path"].(string), "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "slides", rec.Body.String())
	})
}

func TestStudentAPI_listTeachers(t *testing.T) {
	f := setupStudents(t)

	rec := f.do(http.MethodGet, "/api/student/teachers", f.token(t, f.s1))
	require.Equal(t, http.StatusOK, rec.Code)
	teachers := decode(t, rec)["teachers"].([]interface{})
	require.Len(t, teachers, 3)
	assert.Equal(t, f.t1.ID, teachers[0].(map[string]interface{})["id"])
}

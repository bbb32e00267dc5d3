package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeacherAPI(t *testing.T) {
	f := setupStudents(t)
	grp := f.submitJSON(t, f.s1, "2102", "2103")["group"].(map[string]interface{})
	groupID := grp["group_id"].(string)
	base := "/api/teacher/groups/" + groupID

	supervisor := f.token(t, f.t1)
	other := f.token(t, f.t2)

	f.run(t, []httpTest{
		{name: "other teacher has no groups", path: "/api/teacher/groups", token: other, wantData: []byte(`{"groups":[]}`)},
		{
			name: "not the supervisor", path: base + "/marks", token: other,
			wantCode: http.StatusForbidden, wantData: []byte(`{"error":"You are not the supervisor of this group"}`),
		},
		{
			name: "unknown group", path: "/api/teacher/groups/G-00000000/marks", token: supervisor,
			wantCode: http.StatusNotFound, wantData: []byte(`{"error":"Group not found"}`),
		},
		{
			name: "marks required", method: http.MethodPatch, path: base + "/marks/" + f.s1.ID, token: supervisor,
			body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"marks":"marks must be a number between 0 and 100"}`),
		},
		{
			name: "marks out of range", method: http.MethodPatch, path: base + "/marks/" + f.s1.ID, token: supervisor,
			body: []byte(`{"marks":120}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"marks":"marks must be between 0 and 100"}`),
		},
		{
			name: "not a member", method: http.MethodPatch, path: base + "/marks/" + f.s2.ID, token: supervisor,
			body: []byte(`{"marks":50}`), wantCode: http.StatusBadRequest, wantData: []byte(`{"student_id":"Student is not a member of this group"}`),
		},
	})

	t.Run("supervised groups", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/teacher/groups", supervisor)
		require.Equal(t, http.StatusOK, rec.Code)
		grps := decode(t, rec)["groups"].([]interface{})
		require.Len(t, grps, 1)
		assert.Equal(t, groupID, grps[0].(map[string]interface{})["group_id"])
	})

	t.Run("latest submission", func(t *testing.T) {
		rec := f.do(http.MethodGet, base+"/submissions/latest", supervisor)
		require.Equal(t, http.StatusOK, rec.Code)
		sub := decode(t, rec)["submission"].(map[string]interface{})
		assert.Equal(t, f.s1.ID, sub["student_id"])

		rec = f.do(http.MethodGet, base+"/submissions", supervisor)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["submissions"], 1)
	})

	t.Run("marking", func(t *testing.T) {
		rec := f.do(http.MethodPatch, base+"/marks/"+f.s1.ID, supervisor, []byte(`{"marks":80}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.EqualValues(t, 80, decode(t, rec)["mark"].(map[string]interface{})["marks"])

		// the internal id addresses the same group
		rec = f.do(http.MethodPut, "/api/teacher/groups/"+grp["id"].(string)+"/group-mark", supervisor,
			[]byte(`{"marks":75.5,"remarks":"  solid work "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "solid work", decode(t, rec)["mark"].(map[string]interface{})["remarks"])

		rec = f.do(http.MethodGet, base+"/marks", supervisor)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode(t, rec)
		students := res["students"].([]interface{})
		require.Len(t, students, 1)
		assert.EqualValues(t, 80, students[0].(map[string]interface{})["marks"])
		assert.EqualValues(t, 75.5, res["group_mark"].(map[string]interface{})["marks"])
	})
}

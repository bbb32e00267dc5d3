package group_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/tests"
)

func validForm() group.SubmissionForm {
	return testutil.Form("r1", " r2 ", "R3",
		user.User{ID: "t1"}, user.User{ID: "t2"}, user.User{ID: "t3"})
}

func TestSubmissionForm_Validate(t *testing.T) {
	validate, translator := testutil.NewValidate()

	tests := []struct {
		name      string
		modify    func(sf *group.SubmissionForm)
		wantField string
		wantMsg   string
	}{
		{name: "valid"},
		{name: "missing name", modify: func(sf *group.SubmissionForm) { sf.Name = "  " }, wantField: "name", wantMsg: "this field is required"},
		{name: "short mobile", modify: func(sf *group.SubmissionForm) { sf.Mobile = "12345" }, wantField: "mobile", wantMsg: "Mobile Number must be 10 digits"},
		{name: "no agreement", modify: func(sf *group.SubmissionForm) { sf.Agreement = false }, wantField: "agreement", wantMsg: "Agreement to continue as Major Project is required"},
		{name: "same prefs", modify: func(sf *group.SubmissionForm) { sf.Pref3 = sf.Pref1 }, wantField: "pref1", wantMsg: "All three supervisor preferences must be distinct"},
		{name: "same last prefs", modify: func(sf *group.SubmissionForm) { sf.Pref3 = sf.Pref2 }, wantField: "pref2", wantMsg: "All three supervisor preferences must be distinct"},
		{name: "missing pref", modify: func(sf *group.SubmissionForm) { sf.Pref2 = "" }, wantField: "pref2", wantMsg: "this field is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sf := validForm()
			if tt.modify != nil {
				tt.modify(&sf)
			}
			err := sf.Validate(validate)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			got := testutil.TranslateErrors(t, err, translator)
			assert.Equal(t, tt.wantMsg, got[tt.wantField])
		})
	}
}

func TestSubmissionForm_normalization(t *testing.T) {
	validate, _ := testutil.NewValidate()
	sf := validForm()
	sf.ProjectDomain = "Other"
	sf.ProjectDomainOther = "  Robotics "
	require.NoError(t, sf.Validate(validate))

	assert.Equal(t, "R1", sf.UniversityRollNo)
	assert.Equal(t, "9876543210", sf.Mobile)
	assert.Equal(t, []string{"R2", "R3"}, sf.Partners())
	assert.Equal(t, []string{"t1", "t2", "t3"}, sf.Preferences())
	assert.Equal(t, "Robotics", sf.DomainValue())

	sf.ProjectDomainOther = ""
	assert.Equal(t, "Other", sf.DomainValue())

	sf = validForm()
	sf.ProjectDomainOther = "ignored"
	require.NoError(t, sf.Validate(validate))
	assert.Empty(t, sf.ProjectDomainOther)
	assert.Equal(t, "Web", sf.DomainValue())
}

package testutil

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/services/logger"
	"github.com/trezcool/formify/storage/database/inmem"
)

// Password satisfies the password policy.
const Password = "Sup3r-Secr3t!"

// App bundles the services wired on a fresh in-memory store.
type App struct {
	DB         *inmemdb.DB
	UserRepo   user.Repository
	Users      *user.Service
	Groups     *group.Service
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
}

// NewLogger returns a logger that discards its output and never reports to rollbar.
func NewLogger() core.Logger {
	l := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{Env: "test"})
	l.Enable(false)
	return l
}

// NewValidate returns a validator with every custom validator registered, and its translator.
func NewValidate() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	group.InitValidators(validate, translator)
	return validate, translator
}

func NewApp(t *testing.T) *App {
	t.Helper()
	db := inmemdb.Open()
	logger := NewLogger()
	validate, translator := NewValidate()
	usrRepo := inmemdb.NewUserRepository(db)
	users := user.NewService(usrRepo, logger)
	groups := group.NewService(group.Deps{
		Tx:          db,
		Groups:      inmemdb.NewGroupRepository(db),
		Submissions: inmemdb.NewSubmissionRepository(db),
		Marks:       inmemdb.NewMarkRepository(db),
		Logs:        inmemdb.NewOverrideLogRepository(db),
		Users:       users,
		Logger:      logger,
		Validate:    validate,
	})
	return &App{DB: db, UserRepo: usrRepo, Users: users, Groups: groups, Validate: validate, Translator: translator, Logger: logger}
}

func CreateUser(t *testing.T, repo user.Repository, roll, name, pwd, role string, capacity int, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:              NewID(),
		RollNumber:      core.NormalizeRoll(roll),
		Name:            name,
		Role:            role,
		TeacherCapacity: capacity,
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo user.Repository, roll string) user.User {
	t.Helper()
	return CreateUser(t, repo, roll, "Student "+roll, Password, user.RoleStudent, 0)
}

func CreateTeacher(t *testing.T, repo user.Repository, roll string, capacity int) user.User {
	t.Helper()
	return CreateUser(t, repo, roll, "Teacher "+roll, Password, user.RoleTeacher, capacity)
}

func CreateAdmin(t *testing.T, repo user.Repository, roll string) user.User {
	t.Helper()
	return CreateUser(t, repo, roll, "Admin "+roll, Password, user.RoleAdmin, 0)
}

// Form returns a complete project form naming the two teammates and the three preferred teachers.
func Form(roll, member1, member2 string, prefs ...user.User) group.SubmissionForm {
	sf := group.SubmissionForm{
		Name:             "Student " + roll,
		UniversityRollNo: roll,
		Mobile:           "98765-43210",
		Member1Roll:      member1,
		Member2Roll:      member2,
		Member1Name:      "Member " + member1,
		Member2Name:      "Member " + member2,
		ProjectDomain:    "Web",
		Title:            "Project of " + roll,
		Description:      "A project",
		TechStack:        "Go",
		ExpectedOutcomes: "A working system",
		Agreement:        true,
		SDGMapping:       "SDG 4",
	}
	ids := make([]string, 3)
	for i := 0; i < len(prefs) && i < 3; i++ {
		ids[i] = prefs[i].ID
	}
	sf.Pref1, sf.Pref2, sf.Pref3 = ids[0], ids[1], ids[2]
	return sf
}

// Reload returns the stored version of the user.
func Reload(t *testing.T, repo user.Repository, usr user.User) user.User {
	t.Helper()
	u, err := repo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	if err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	return u
}

func NewID() string { return uuid.NewString() }

// TranslateErrors maps every failed field of a validation error to its translated message.
func TranslateErrors(t *testing.T, err error, translator ut.Translator) map[string]string {
	t.Helper()
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("TranslateErrors() got %T (%v), want validator.ValidationErrors", err, err)
	}
	res := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		res[fe.Field()] = fe.Translate(translator)
	}
	return res
}

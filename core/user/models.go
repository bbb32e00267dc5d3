package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/formify/core"
)

// Roles
const (
	RoleStudent = "Student"
	RoleTeacher = "Teacher"
	RoleAdmin   = "Admin"
)

var AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

type User struct {
	ID           string    `json:"id"`
	RollNumber   string    `json:"roll_number"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC

	// Teacher only
	TeacherCapacity     int `json:"teacher_capacity"`
	AssignedGroupsCount int `json:"assigned_groups_count"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// HasCapacity reports whether a teacher can take one more group.
func (u *User) HasCapacity() bool {
	return u.IsTeacher() && u.AssignedGroupsCount < u.TeacherCapacity
}

// Summary is the public view of a User embedded in other resources.
type Summary struct {
	ID         string `json:"id"`
	RollNumber string `json:"roll_number"`
	Name       string `json:"name"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, RollNumber: u.RollNumber, Name: u.Name}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	RollNumber      string `json:"roll_number" validate:"required,rollno"`
	Name            string `json:"name" validate:"required"`
	Password        string `json:"password" validate:"required"`
	Role            string `json:"role" validate:"required,role"`
	TeacherCapacity int    `json:"teacher_capacity" validate:"min=0"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.RollNumber = core.NormalizeRoll(nu.RollNumber)
	nu.Name = core.CleanString(nu.Name)
	nu.Role = core.CleanString(nu.Role)
	if nu.Role != RoleTeacher {
		nu.TeacherCapacity = 0
	}
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
// nil fields are left untouched.
type UpdateUser struct {
	Name            *string `json:"name"`
	RollNumber      *string `json:"roll_number" validate:"omitempty,rollno"`
	Password        *string `json:"password"`
	TeacherCapacity *int    `json:"teacher_capacity" validate:"omitempty,min=0"`
}

// Validate cleans the update against the original user.
// Blank names and passwords are ignored, a blank roll number is rejected.
func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	var changed bool

	if uu.Name != nil {
		if name := core.CleanString(*uu.Name); name != "" {
			uu.Name = &name
			changed = true
		} else {
			uu.Name = nil
		}
	}
	if uu.RollNumber != nil {
		roll := core.NormalizeRoll(*uu.RollNumber)
		if roll == "" {
			return core.NewFieldError("roll_number", "rollNumber cannot be empty")
		}
		uu.RollNumber = &roll
		changed = true
	}
	if uu.Password != nil {
		if pwd := core.CleanString(*uu.Password); pwd != "" {
			uu.Password = &pwd
			changed = true
		} else {
			uu.Password = nil
		}
	}
	if uu.TeacherCapacity != nil {
		if !origUsr.IsTeacher() {
			uu.TeacherCapacity = nil
		} else {
			if *uu.TeacherCapacity < 0 {
				return ErrInvalidCapacity
			}
			changed = true
		}
	}

	if !changed {
		return errNoFieldsToUpdate
	}
	return validate.Struct(uu)
}

// Apply copies the set fields of the update onto `usr`.
func (uu UpdateUser) Apply(usr *User) error {
	if uu.Name != nil {
		usr.Name = *uu.Name
	}
	if uu.RollNumber != nil {
		usr.RollNumber = *uu.RollNumber
	}
	if uu.Password != nil {
		if err := usr.SetPassword(*uu.Password); err != nil {
			return err
		}
	}
	if uu.TeacherCapacity != nil {
		usr.TeacherCapacity = *uu.TeacherCapacity
	}
	usr.UpdatedAt = time.Now().UTC()
	return nil
}

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID         string
	RollNumber string
}

type QueryFilter struct {
	Role string   `query:"role"`
	IDs  []string `query:"id"`
	// OrderBy is one of "roll_number" (default) or "name".
	OrderBy string `query:"-"`
}

package domain

import (
	"encoding/json"
	"strings"
)

// User types reported by the API.
const (
	UserStudent   = "student"
	UserTeacher   = "teacher"
	UserAlumni    = "alumni"
	UserOrganizer = "organizer"
	UserAdmin     = "admin"
)

// User is a portal account as other users see it.
type User struct {
	ID        ID     `json:"id" validate:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Type      string `json:"type,omitempty"`
	Class     ID     `json:"clazz,omitempty"`
}

// ParseUser decodes and validates a user record.
func ParseUser(raw json.RawMessage) (User, error) { return decode[User]("user", raw) }

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// AdminAuthor stands in for posts published without an author.
var AdminAuthor = User{
	ID:        "-1",
	Username:  "admin",
	FirstName: "Administrator",
	Type:      UserAdmin,
}

// Profile is the logged-in user with the class and grade references
// resolved.
type Profile struct {
	User
	ClassRecord *Class
	GradeRecord *Grade
}

// ResolveProfile resolves u's class and that class's grade. Unknown
// references are left nil.
func ResolveProfile(u User, classes Lookup[Class], grades Lookup[Grade]) Profile {
	p := Profile{User: u}
	if c, ok := Resolve(classes, u.Class); ok {
		p.ClassRecord = &c
		if g, ok := c.GradeOf(grades); ok {
			p.GradeRecord = &g
		}
	}
	return p
}

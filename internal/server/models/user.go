package models

import "time"

// Role is the coarse authorization class of a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleOfficer Role = "officer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleOfficer:
		return true
	}
	return false
}

// User is a stored credential plus profile. PhoneNumber is unique.
type User struct {
	ID           string
	PhoneNumber  string
	PasswordHash string
	Role         Role
	Username     string
	RealName     string
	Email        string
	StudentID    string
	TeacherID    string
	College      string
	Major        string
	ClassName    string
	RegisteredAt time.Time
}

// Profile is the public view of a user. It never carries the password hash.
type Profile struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username,omitempty"`
	RealName    string    `json:"realName,omitempty"`
	PhoneNumber string    `json:"phoneNumber"`
	Email       string    `json:"email,omitempty"`
	Role        Role      `json:"role"`
	StudentID   string    `json:"studentId,omitempty"`
	TeacherID   string    `json:"teacherId,omitempty"`
	College     string    `json:"college,omitempty"`
	Major       string    `json:"major,omitempty"`
	ClassName   string    `json:"className,omitempty"`
	Registered  time.Time `json:"registerTime"`
}

// Profile strips credentials from u.
func (u *User) Profile() Profile {
	return Profile{
		UserID:      u.ID,
		Username:    u.Username,
		RealName:    u.RealName,
		PhoneNumber: u.PhoneNumber,
		Email:       u.Email,
		Role:        u.Role,
		StudentID:   u.StudentID,
		TeacherID:   u.TeacherID,
		College:     u.College,
		Major:       u.Major,
		ClassName:   u.ClassName,
		Registered:  u.RegisteredAt,
	}
}

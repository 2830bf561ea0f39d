package domain

import (
	"time"

	"github.com/google/uuid"
)

type School struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleParent  UserRole = "parent"
	RoleTeacher UserRole = "teacher"
	RoleStaff   UserRole = "staff"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	SchoolID     int64     `json:"school_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	ClassNum     *int64    `json:"class_num,omitempty"`   // students and parents
	SectionNum   *int64    `json:"section_num,omitempty"` // students and parents
	TeacherID    *int64    `json:"teacher_id,omitempty"`  // set for teaching staff
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TeacherAssignment links a teaching user to a class (and optionally a
// section and subject) they teach. Each assignment implies automatic group
// memberships.
type TeacherAssignment struct {
	TeacherUserID uuid.UUID `json:"teacher_user_id"`
	ClassNum      int64     `json:"class_num"`
	SectionNum    *int64    `json:"section_num,omitempty"`
	SubjectID     *int64    `json:"subject_id,omitempty"`
}

type Subject struct {
	ID       int64  `json:"id"`
	SchoolID int64  `json:"school_id"`
	ClassNum int64  `json:"class_num"`
	Name     string `json:"name"`
}

package domain

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Role is the access level of an account
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// IDList is an ordered set of problem ids, stored as a text array on Postgres
type IDList []string

// Value implements driver.Valuer
func (l IDList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// Scan implements sql.Scanner
func (l *IDList) Scan(src interface{}) error {
	return (*pq.StringArray)(l).Scan(src)
}

// GormDataType is the dialect-neutral type GORM needs to parse the schema
func (IDList) GormDataType() string {
	return "text"
}

// GormDBDataType picks the column type per dialect; other stores keep the array literal as text
func (IDList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// User represents an account together with its progress overlay.
// SolvedProblems and StarredProblems are sets stored as arrays.
type User struct {
	ID              string            `json:"uid" gorm:"type:varchar(36);primaryKey"`
	Email           string            `json:"email" gorm:"uniqueIndex;not null"`
	Name            string            `json:"name" gorm:"not null"`
	DisplayName     string            `json:"displayName,omitempty"`
	PasswordHash    string            `json:"-" gorm:"not null"`
	Role            Role              `json:"role" gorm:"type:varchar(10);not null;default:'user'"`
	SolvedProblems  IDList            `json:"solvedProblems"`
	StarredProblems IDList            `json:"starredProblems"`
	Notes           datatypes.JSONMap `json:"notes"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user may manage the catalog
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// NoteMap returns the user's notes as plain strings, skipping non-string values
func (u *User) NoteMap() map[string]string {
	notes := make(map[string]string, len(u.Notes))
	for id, v := range u.Notes {
		if s, ok := v.(string); ok {
			notes[id] = s
		}
	}
	return notes
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

// UserCreateRequest represents the data needed to create a new user
type UserCreateRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// ProfileUpdateRequest is a partial edit of the user's profile
type ProfileUpdateRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	DisplayName *string `json:"displayName" binding:"omitempty,max=100"`
}

// UserResponse represents the public user data returned by the API
type UserResponse struct {
	ID              string            `json:"uid"`
	Email           string            `json:"email"`
	Name            string            `json:"name"`
	DisplayName     string            `json:"displayName,omitempty"`
	Role            Role              `json:"role"`
	SolvedProblems  []string          `json:"solvedProblems"`
	StarredProblems []string          `json:"starredProblems"`
	Notes           map[string]string `json:"notes"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ToResponse converts a User to a UserResponse (hides sensitive data)
func (u *User) ToResponse() UserResponse {
	solved := []string(u.SolvedProblems)
	if solved == nil {
		solved = []string{}
	}
	starred := []string(u.StarredProblems)
	if starred == nil {
		starred = []string{}
	}
	return UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		DisplayName:     u.DisplayName,
		Role:            u.Role,
		SolvedProblems:  solved,
		StarredProblems: starred,
		Notes:           u.NoteMap(),
		CreatedAt:       u.CreatedAt,
	}
}

// UserProgress represents the user's overall progress statistics
type UserProgress struct {
	TotalSolved   int                   `json:"total_solved"`
	EasySolved    int                   `json:"easy_solved"`
	MediumSolved  int                   `json:"medium_solved"`
	HardSolved    int                   `json:"hard_solved"`
	StarredCount  int                   `json:"starred_count"`
	NotesCount    int                   `json:"notes_count"`
	TopicProgress map[string]TopicStats `json:"topic_progress"`
	SheetProgress map[string]TopicStats `json:"sheet_progress"`
}

// TopicStats represents progress within a specific topic or sheet
type TopicStats struct {
	Total  int `json:"total"`
	Solved int `json:"solved"`
}

package domain

import "context"

// Difficulty represents the difficulty level of a problem
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ValidDifficulties lists the accepted difficulty levels in ascending severity
var ValidDifficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Severity returns a numeric weight for sorting by difficulty.
// Unknown values sort after Hard.
func (d Difficulty) Severity() int {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 2
	case DifficultyHard:
		return 3
	default:
		return 4
	}
}

// IsValid reports whether d is one of the known difficulty levels
func (d Difficulty) IsValid() bool {
	return d.Severity() < 4
}

// UnorderedDisplayOrder is the order assigned to problems stored without one,
// so they sort after every explicitly placed problem.
const UnorderedDisplayOrder = 999999

// Problem represents a catalog entry shared by all users
type Problem struct {
	ID           string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	Title        string     `json:"title" gorm:"not null"`
	Link         string     `json:"link" gorm:"not null"`
	Topic        string     `json:"topic" gorm:"not null;index"`
	SubTopic     string     `json:"subTopic"`
	Difficulty   Difficulty `json:"difficulty" gorm:"type:varchar(10);not null"`
	SheetType    string     `json:"sheetType" gorm:"not null;index"`
	DisplayOrder int        `json:"displayOrder" gorm:"not null;default:999999;index"`
}

// TableName specifies the table name for GORM
func (Problem) TableName() string {
	return "problems"
}

// ProblemInput is a problem without its storage-assigned id and order.
// It is what admins submit and what the import pipeline produces.
type ProblemInput struct {
	Title      string     `json:"title" binding:"required"`
	Link       string     `json:"link" binding:"required,url"`
	Topic      string     `json:"topic" binding:"required"`
	SubTopic   string     `json:"subTopic"`
	Difficulty Difficulty `json:"difficulty" binding:"required,oneof=Easy Medium Hard"`
	SheetType  string     `json:"sheetType" binding:"required"`
}

// ToProblem builds a Problem from the input with the given display order
func (in ProblemInput) ToProblem(displayOrder int) Problem {
	return Problem{
		Title:        in.Title,
		Link:         in.Link,
		Topic:        in.Topic,
		SubTopic:     in.SubTopic,
		Difficulty:   in.Difficulty,
		SheetType:    in.SheetType,
		DisplayOrder: displayOrder,
	}
}

// ProblemUpdate is a partial edit of a problem; nil fields are left untouched
type ProblemUpdate struct {
	Title        *string     `json:"title"`
	Link         *string     `json:"link" binding:"omitempty,url"`
	Topic        *string     `json:"topic"`
	SubTopic     *string     `json:"subTopic"`
	Difficulty   *Difficulty `json:"difficulty"`
	SheetType    *string     `json:"sheetType"`
	DisplayOrder *int        `json:"displayOrder"`
}

// IsEmpty reports whether the update changes nothing
func (u ProblemUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}

// Fields returns the column/value pairs for a partial merge
func (u ProblemUpdate) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.Link != nil {
		fields["link"] = *u.Link
	}
	if u.Topic != nil {
		fields["topic"] = *u.Topic
	}
	if u.SubTopic != nil {
		fields["sub_topic"] = *u.SubTopic
	}
	if u.Difficulty != nil {
		fields["difficulty"] = *u.Difficulty
	}
	if u.SheetType != nil {
		fields["sheet_type"] = *u.SheetType
	}
	if u.DisplayOrder != nil {
		fields["display_order"] = *u.DisplayOrder
	}
	return fields
}

// ApplyTo merges the update into p
func (u ProblemUpdate) ApplyTo(p *Problem) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Link != nil {
		p.Link = *u.Link
	}
	if u.Topic != nil {
		p.Topic = *u.Topic
	}
	if u.SubTopic != nil {
		p.SubTopic = *u.SubTopic
	}
	if u.Difficulty != nil {
		p.Difficulty = *u.Difficulty
	}
	if u.SheetType != nil {
		p.SheetType = *u.SheetType
	}
	if u.DisplayOrder != nil {
		p.DisplayOrder = *u.DisplayOrder
	}
}

// ProblemRepository defines the document-store contract for the catalog
type ProblemRepository interface {
	Create(ctx context.Context, problem *Problem) error
	CreateBatch(ctx context.Context, problems []Problem) error
	FindByID(ctx context.Context, id string) (*Problem, error)
	FindAll(ctx context.Context) ([]Problem, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// ProblemStats represents statistics about the problem set
type ProblemStats struct {
	Total        int                `json:"total"`
	ByDifficulty map[Difficulty]int `json:"by_difficulty"`
	ByTopic      map[string]int     `json:"by_topic"`
	BySheetType  map[string]int     `json:"by_sheet_type"`
}

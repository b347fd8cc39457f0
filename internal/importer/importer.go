// Package importer classifies bulk-upload rows into valid problem inputs and
// per-row errors. It never decides whether a batch is committed.
package importer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sheet-tracker/backend/internal/domain"
)

// DefaultSheetTypes is the allow-list used when none is configured
var DefaultSheetTypes = []string{"DSA", "SQL", "System Design", "Web Development"}

// requiredFields are checked in this order; the first failure is the row's error
var requiredFields = []string{"title", "link", "topic", "subTopic", "difficulty", "sheetType"}

// Row is one raw record of an upload keyed by field name
type Row map[string]interface{}

// Result is the classification of an upload
type Result struct {
	Data   []domain.ProblemInput `json:"data"`
	Errors []string              `json:"errors"`
}

// OK reports whether every row was valid
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

func failed(msg string) Result {
	return Result{Data: []domain.ProblemInput{}, Errors: []string{msg}}
}

// Validator checks upload rows against the problem schema
type Validator struct {
	sheetTypes []string
	validate   *validator.Validate
}

// NewValidator creates a validator accepting the given sheet types.
// An empty allow-list accepts any non-blank sheet type.
func NewValidator(sheetTypes []string) *Validator {
	return &Validator{
		sheetTypes: slices.Clone(sheetTypes),
		validate:   validator.New(),
	}
}

// SheetTypes returns the configured allow-list
func (v *Validator) SheetTypes() []string {
	return slices.Clone(v.sheetTypes)
}

// ValidateRow checks a single row and returns it trimmed
func (v *Validator) ValidateRow(row Row) (domain.ProblemInput, error) {
	values := make(map[string]string, len(requiredFields))
	for _, field := range requiredFields {
		s, ok := row[field].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return domain.ProblemInput{}, fmt.Errorf("Missing or invalid %s", field)
		}
		values[field] = strings.TrimSpace(s)
	}

	if err := v.validate.Var(values["difficulty"], "oneof=Easy Medium Hard"); err != nil {
		return domain.ProblemInput{}, fmt.Errorf("Invalid difficulty. Must be one of: %s", difficultyList())
	}

	if len(v.sheetTypes) > 0 && !slices.Contains(v.sheetTypes, values["sheetType"]) {
		return domain.ProblemInput{}, fmt.Errorf("Invalid sheetType. Must be one of: %s", strings.Join(v.sheetTypes, ", "))
	}

	if err := v.validate.Var(values["link"], "required,url"); err != nil {
		return domain.ProblemInput{}, errors.New("Invalid URL format for link")
	}

	return domain.ProblemInput{
		Title:      values["title"],
		Link:       values["link"],
		Topic:      values["topic"],
		SubTopic:   values["subTopic"],
		Difficulty: domain.Difficulty(values["difficulty"]),
		SheetType:  values["sheetType"],
	}, nil
}

// ValidateInput checks a problem added by hand. SubTopic is optional and any
// sheet type is accepted, so admins can open a new section from the form.
func (v *Validator) ValidateInput(in domain.ProblemInput) (domain.ProblemInput, error) {
	out := domain.ProblemInput{
		Title:      strings.TrimSpace(in.Title),
		Link:       strings.TrimSpace(in.Link),
		Topic:      strings.TrimSpace(in.Topic),
		SubTopic:   strings.TrimSpace(in.SubTopic),
		Difficulty: domain.Difficulty(strings.TrimSpace(string(in.Difficulty))),
		SheetType:  strings.TrimSpace(in.SheetType),
	}
	required := []struct{ field, value string }{
		{"title", out.Title},
		{"link", out.Link},
		{"topic", out.Topic},
		{"sheetType", out.SheetType},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.ProblemInput{}, fmt.Errorf("Missing or invalid %s", r.field)
		}
	}
	if !out.Difficulty.IsValid() {
		return domain.ProblemInput{}, fmt.Errorf("Invalid difficulty. Must be one of: %s", difficultyList())
	}
	if err := v.validate.Var(out.Link, "required,url"); err != nil {
		return domain.ProblemInput{}, errors.New("Invalid URL format for link")
	}
	return out, nil
}

// Validate checks every row independently. Errors are prefixed with label and the
// 1-based row number, e.g. "Row 2: Missing or invalid title".
func (v *Validator) Validate(rows []Row, label string) Result {
	result := Result{
		Data:   make([]domain.ProblemInput, 0, len(rows)),
		Errors: []string{},
	}
	for i, row := range rows {
		input, err := v.ValidateRow(row)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %d: %s", label, i+1, err.Error()))
			continue
		}
		result.Data = append(result.Data, input)
	}
	return result
}

// Parse picks the format from the file name, falling back to the content type.
func (v *Validator) Parse(filename, contentType string, r io.Reader) (Result, error) {
	switch format(filename, contentType) {
	case "csv":
		return v.ParseCSV(r), nil
	case "json":
		return v.ParseJSON(r), nil
	}
	return Result{}, domain.ErrUnsupportedFormat
}

func format(filename, contentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "csv"):
		return "csv"
	case strings.Contains(ct, "json"):
		return "json"
	}
	return ""
}

func difficultyList() string {
	names := make([]string, len(domain.ValidDifficulties))
	for i, d := range domain.ValidDifficulties {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}

package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sheet-tracker/backend/internal/domain"
)

// Pseudo sections that never restrict the catalog.
const (
	SectionAdmin    = "admin"
	SectionSettings = "settings"
)

// OtherTopic groups problems that have no topic.
const OtherTopic = "Other"

// StatusFilter restricts the catalog by the user's progress
type StatusFilter string

const (
	StatusAll      StatusFilter = "all"
	StatusSolved   StatusFilter = "solved"
	StatusUnsolved StatusFilter = "unsolved"
	StatusStarred  StatusFilter = "starred"
)

// ParseStatus maps a request value to a StatusFilter. Empty means all.
func ParseStatus(s string) (StatusFilter, error) {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusSolved:
		return StatusSolved, nil
	case StatusUnsolved:
		return StatusUnsolved, nil
	case StatusStarred:
		return StatusStarred, nil
	}
	return "", fmt.Errorf("invalid status filter %q", s)
}

// ParseDifficulty maps a request value to a difficulty filter.
// Empty, "all" and "All Difficulty" mean no restriction and return "".
func ParseDifficulty(s string) (domain.Difficulty, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "all", "All Difficulty":
		return "", nil
	}
	d := domain.Difficulty(s)
	if !d.IsValid() {
		return "", domain.ErrInvalidDifficulty
	}
	return d, nil
}

// Criteria is the ephemeral filter state of one view of the catalog
type Criteria struct {
	Section    string
	Search     string
	Difficulty domain.Difficulty
	Status     StatusFilter
}

var whitespaceRun = regexp.MustCompile(`[\s\p{Zs}]+`)

// SectionID derives the navigable section id of a sheet type: lowercased, with every
// whitespace run replaced by a hyphen. "System Design" becomes "system-design".
func SectionID(sheetType string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(sheetType), "-")
}

// IsContentSection reports whether section restricts problems by sheet type.
func IsContentSection(section string) bool {
	return section != "" && section != SectionAdmin && section != SectionSettings
}

// IDSet is a membership set of problem ids
type IDSet map[string]struct{}

// NewIDSet builds a set from ids; duplicates collapse.
func NewIDSet(ids []string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports membership. A nil set contains nothing.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Filter returns the problems visible under c, preserving catalog order.
// It never mutates its inputs.
func Filter(problems []domain.Problem, c Criteria, solved, starred IDSet) []domain.Problem {
	search := strings.ToLower(strings.TrimSpace(c.Search))
	visible := make([]domain.Problem, 0, len(problems))
	for _, p := range problems {
		if matches(&p, c, search, solved, starred) {
			visible = append(visible, p)
		}
	}
	return visible
}

func matches(p *domain.Problem, c Criteria, search string, solved, starred IDSet) bool {
	if IsContentSection(c.Section) && SectionID(p.SheetType) != c.Section {
		return false
	}
	if search != "" && !matchesSearch(p, search) {
		return false
	}
	if c.Difficulty != "" && p.Difficulty != c.Difficulty {
		return false
	}
	switch c.Status {
	case StatusSolved:
		return solved.Has(p.ID)
	case StatusStarred:
		return starred.Has(p.ID)
	case StatusUnsolved:
		return !solved.Has(p.ID)
	}
	return true
}

func matchesSearch(p *domain.Problem, search string) bool {
	for _, field := range []string{p.Title, p.Topic, p.SubTopic, string(p.Difficulty), p.SheetType} {
		if field != "" && strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// TopicGroup is one topic of the grouped presentation with its progress summary
type TopicGroup struct {
	Topic    string           `json:"topic"`
	Problems []domain.Problem `json:"problems"`
	Solved   int              `json:"solved"`
	Total    int              `json:"total"`
}

// GroupByTopic partitions problems by topic in order of first occurrence.
func GroupByTopic(problems []domain.Problem, solved IDSet) []TopicGroup {
	groups := make([]TopicGroup, 0)
	index := make(map[string]int)
	for _, p := range problems {
		topic := p.Topic
		if topic == "" {
			topic = OtherTopic
		}
		i, ok := index[topic]
		if !ok {
			i = len(groups)
			index[topic] = i
			groups = append(groups, TopicGroup{Topic: topic})
		}
		g := &groups[i]
		g.Problems = append(g.Problems, p)
		g.Total++
		if solved.Has(p.ID) {
			g.Solved++
		}
	}
	return groups
}

// Section is a navigable subset of the catalog derived from a sheet type
type Section struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Solved int    `json:"solved"`
	Total  int    `json:"total"`
}

// Sections lists the distinct sheet types of the catalog in order of first occurrence.
// An empty catalog falls back to the configured default sheet names.
func Sections(problems []domain.Problem, solved IDSet, fallback []string) []Section {
	sections := make([]Section, 0)
	index := make(map[string]int)
	for _, p := range problems {
		if p.SheetType == "" {
			continue
		}
		id := SectionID(p.SheetType)
		i, ok := index[id]
		if !ok {
			i = len(sections)
			index[id] = i
			sections = append(sections, Section{ID: id, Name: p.SheetType})
		}
		sections[i].Total++
		if solved.Has(p.ID) {
			sections[i].Solved++
		}
	}
	if len(sections) == 0 {
		for _, name := range fallback {
			sections = append(sections, Section{ID: SectionID(name), Name: name})
		}
	}
	return sections
}

// DefaultSection is the section shown first: the one of the first problem in catalog order.
func DefaultSection(problems []domain.Problem) string {
	if len(problems) == 0 {
		return ""
	}
	return SectionID(problems[0].SheetType)
}

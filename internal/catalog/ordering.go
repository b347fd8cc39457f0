// Package catalog holds the pure rules that turn the shared problem catalog and a
// user's progress overlay into what is shown: the ordering policy and the filter engine.
// Nothing here touches storage.
package catalog

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sheet-tracker/backend/internal/domain"
)

// orderer compares problems using locale-aware collation for text fields.
// collate.Collator is not safe for concurrent use, so every sort builds its own.
type orderer struct {
	col *collate.Collator
}

func newOrderer() *orderer {
	return &orderer{col: collate.New(language.English)}
}

func (o *orderer) topicTitle(a, b *domain.Problem) int {
	if c := o.col.CompareString(a.Topic, b.Topic); c != 0 {
		return c
	}
	return o.col.CompareString(a.Title, b.Title)
}

func (o *orderer) displayOrder(a, b *domain.Problem) int {
	if c := cmp.Compare(a.DisplayOrder, b.DisplayOrder); c != 0 {
		return c
	}
	return o.topicTitle(a, b)
}

func (o *orderer) difficulty(a, b *domain.Problem) int {
	if c := cmp.Compare(a.Difficulty.Severity(), b.Difficulty.Severity()); c != 0 {
		return c
	}
	return o.topicTitle(a, b)
}

// Compare orders two problems the way every catalog read does:
// display order ascending, then topic, then title.
func Compare(a, b domain.Problem) int {
	return newOrderer().displayOrder(&a, &b)
}

// SortDefault sorts problems in place with the default catalog comparator.
func SortDefault(problems []domain.Problem) {
	o := newOrderer()
	slices.SortStableFunc(problems, func(a, b domain.Problem) int {
		return o.displayOrder(&a, &b)
	})
}

// SortByTopic returns a copy of problems ranked by (topic, title) and renumbered 1..N.
func SortByTopic(problems []domain.Problem) []domain.Problem {
	o := newOrderer()
	sorted := slices.Clone(problems)
	slices.SortStableFunc(sorted, func(a, b domain.Problem) int {
		return o.topicTitle(&a, &b)
	})
	Renumber(sorted)
	return sorted
}

// SortByDifficulty returns a copy of problems ranked by (severity, topic, title)
// and renumbered 1..N.
func SortByDifficulty(problems []domain.Problem) []domain.Problem {
	o := newOrderer()
	sorted := slices.Clone(problems)
	slices.SortStableFunc(sorted, func(a, b domain.Problem) int {
		return o.difficulty(&a, &b)
	})
	Renumber(sorted)
	return sorted
}

// MoveBefore removes movingID from the materialized order and reinserts it directly
// in front of targetID, or at the end when targetID is empty. The result is renumbered
// 1..N. It reports false, leaving nothing to write, when the move is a no-op or either
// id is unknown.
func MoveBefore(problems []domain.Problem, movingID, targetID string) ([]domain.Problem, bool) {
	if movingID == "" || movingID == targetID {
		return nil, false
	}
	from := indexOf(problems, movingID)
	if from < 0 {
		return nil, false
	}
	if targetID != "" && indexOf(problems, targetID) < 0 {
		return nil, false
	}

	reordered := slices.Clone(problems)
	moving := reordered[from]
	reordered = slices.Delete(reordered, from, from+1)

	to := len(reordered)
	if targetID != "" {
		to = indexOf(reordered, targetID)
	}
	reordered = slices.Insert(reordered, to, moving)
	Renumber(reordered)
	return reordered, true
}

// Renumber assigns DisplayOrder 1..N following the slice order.
func Renumber(problems []domain.Problem) {
	for i := range problems {
		problems[i].DisplayOrder = i + 1
	}
}

// NextDisplayOrder places a new problem after the last one sharing its topic, or after
// the whole catalog when the topic is new.
func NextDisplayOrder(problems []domain.Problem, topic string) int {
	maxInTopic, maxOverall := 0, 0
	sameTopic := false
	for _, p := range problems {
		if p.DisplayOrder > maxOverall {
			maxOverall = p.DisplayOrder
		}
		if p.Topic == topic {
			sameTopic = true
			if p.DisplayOrder > maxInTopic {
				maxInTopic = p.DisplayOrder
			}
		}
	}
	if sameTopic {
		return maxInTopic + 1
	}
	return maxOverall + 1
}

func indexOf(problems []domain.Problem, id string) int {
	return slices.IndexFunc(problems, func(p domain.Problem) bool {
		return p.ID == id
	})
}

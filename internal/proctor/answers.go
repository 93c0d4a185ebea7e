package proctor

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math/rand/v2"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// AnswerSet maps section -> question -> selected option text. Flat papers
// use section 0. Question indexes are canonical paper positions.
type AnswerSet map[int]map[int]string

func (a AnswerSet) Get(section, question int) (string, bool) {
	v, ok := a[section][question]
	return v, ok
}

func (a AnswerSet) Set(section, question int, option string) {
	if a[section] == nil {
		a[section] = make(map[int]string)
	}
	a[section][question] = option
}

// Count is the number of answered questions across every section.
func (a AnswerSet) Count() int {
	n := 0
	for _, qs := range a {
		n += len(qs)
	}
	return n
}

// Clone deep-copies the set so it can leave the session goroutine.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for s, qs := range a {
		out[s] = maps.Clone(qs)
	}
	return out
}

// ReviewMarks flags questions the student wants to revisit.
type ReviewMarks map[int]map[int]bool

// Toggle flips the mark and returns the new value.
func (r ReviewMarks) Toggle(section, question int) bool {
	if r[section] == nil {
		r[section] = make(map[int]bool)
	}
	if r[section][question] {
		delete(r[section], question)
		return false
	}
	r[section][question] = true
	return true
}

func (r ReviewMarks) Clone() ReviewMarks {
	out := make(ReviewMarks, len(r))
	for s, qs := range r {
		out[s] = maps.Clone(qs)
	}
	return out
}

// QuestionOrder holds the display order per section as canonical indexes.
type QuestionOrder [][]int

func identityOrder(p *model.Paper) QuestionOrder {
	order := make(QuestionOrder, p.SectionCount())
	for s := range order {
		n := len(p.QuestionsIn(s))
		order[s] = make([]int, n)
		for i := range n {
			order[s][i] = i
		}
	}
	return order
}

func shuffledOrder(p *model.Paper) QuestionOrder {
	order := make(QuestionOrder, p.SectionCount())
	for s := range order {
		order[s] = rand.Perm(len(p.QuestionsIn(s)))
	}
	return order
}

// fits reports whether a restored order still matches the paper's shape.
func (o QuestionOrder) fits(p *model.Paper) bool {
	if len(o) != p.SectionCount() {
		return false
	}
	for s, idx := range o {
		n := len(p.QuestionsIn(s))
		if len(idx) != n {
			return false
		}
		seen := make([]bool, n)
		for _, q := range idx {
			if q < 0 || q >= n || seen[q] {
				return false
			}
			seen[q] = true
		}
	}
	return true
}

// clientPaper strips answer keys and applies the display order.
func clientPaper(p *model.Paper, order QuestionOrder) *model.ClientPaper {
	out := &model.ClientPaper{
		ContestID: p.ContestID,
		Title:     p.Title,
		Mode:      p.Mode,
		Sections:  make([]model.ClientSection, p.SectionCount()),
	}

	for s := range out.Sections {
		qs := p.QuestionsIn(s)
		cs := model.ClientSection{Questions: make([]model.ClientQuestion, 0, len(qs))}
		if p.Mode == model.ExamModeSectioned {
			cs.Name = p.Sections[s].Name
			cs.DurationSeconds = p.Sections[s].Duration.Seconds()
		}
		for _, idx := range order[s] {
			cs.Questions = append(cs.Questions, model.ClientQuestion{
				Index:   idx,
				Text:    qs[idx].Text,
				Options: qs[idx].Options,
			})
		}
		out.Sections[s] = cs
	}
	return out
}

func loadJSON(ctx context.Context, store SessionStore, ns, key string, dst any) (bool, error) {
	raw, ok, err := store.Get(ctx, ns, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, nil
	}
	return true, nil
}

func saveJSON(ctx context.Context, store SessionStore, ns, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, ns, key, string(b)); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

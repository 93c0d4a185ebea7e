package proctor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Reason explains why a session finished.
type Reason string

const (
	ReasonTimeExpired Reason = "time_expired"
	ReasonViolations  Reason = "violation_limit"
	ReasonManual      Reason = "manual"
)

// ResultSink delivers the final submission. It is called exactly once per
// successful finish.
type ResultSink interface {
	Submit(ctx context.Context, payload *model.SubmissionPayload) error
}

// Submitter builds the payload and hands it to the sink under a timeout.
type Submitter struct {
	sink    ResultSink
	timeout time.Duration
}

func NewSubmitter(sink ResultSink, timeout time.Duration) *Submitter {
	return &Submitter{sink: sink, timeout: timeout}
}

func (s *Submitter) Submit(ctx context.Context, payload *model.SubmissionPayload) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.sink.Submit(ctx, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	return nil
}

// PayloadInput is everything needed to grade a session.
type PayloadInput struct {
	Paper          *model.Paper
	StudentID      int
	Answers        AnswerSet
	Counts         Counts
	PassPercentage float64
	Reason         Reason
	At             time.Time
}

// BuildPayload grades the answers. Every question of the paper appears in the
// result; unanswered ones are recorded as not attended.
func BuildPayload(in PayloadInput) *model.SubmissionPayload {
	p := in.Paper
	out := &model.SubmissionPayload{
		ContestID:         p.ContestID,
		StudentID:         in.StudentID,
		Mode:              p.Mode,
		Reason:            string(in.Reason),
		PassPercentage:    in.PassPercentage,
		FullscreenWarning: in.Counts.Fullscreen,
		TabSwitchWarning:  in.Counts.TabSwitch,
		NoiseWarning:      in.Counts.Noise,
		FaceWarning:       in.Counts.Face,
		SubmittedAt:       in.At,
	}

	for s := 0; s < p.SectionCount(); s++ {
		qs := p.QuestionsIn(s)
		records := make([]model.AnswerRecord, 0, len(qs))
		for q, question := range qs {
			selected, ok := in.Answers.Get(s, q)
			if !ok {
				selected = model.NotAttended
			}
			correct := ok && selected == question.CorrectAnswer
			if correct {
				out.CorrectAnswers++
			}
			records = append(records, model.AnswerRecord{
				Section:       s,
				Question:      q,
				Text:          question.Text,
				Selected:      selected,
				CorrectAnswer: question.CorrectAnswer,
				IsCorrect:     correct,
			})
		}
		out.TotalQuestions += len(qs)

		if p.Mode == model.ExamModeSectioned {
			out.SectionAnswers = append(out.SectionAnswers, model.SectionAnswers{
				SectionName: p.Sections[s].Name,
				Answers:     records,
			})
		} else {
			out.Answers = records
		}
	}

	var pct float64
	if out.TotalQuestions > 0 {
		pct = float64(out.CorrectAnswers) / float64(out.TotalQuestions) * 100
	}
	// Graded on the exact score; the payload carries two decimals.
	out.Percentage = math.Round(pct*100) / 100
	out.Grade = model.GradeFail
	if pct >= in.PassPercentage {
		out.Grade = model.GradePass
	}
	return out
}

// meetsMinimum reports whether answered covers ratio of total, rounding the
// requirement up.
func meetsMinimum(answered, total int, ratio float64) bool {
	required := int(math.Ceil(ratio * float64(total)))
	return answered >= required
}

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dkarpov/fitbot/internal/model"
)

const reportTimeLayout = "02-01-2006_15:04:05"

// buildReport assembles the three-part completion payload from a
// finished session. The body lists `key: response` pairs in catalog
// order, leaving out skipped answers and the picture entry; the image,
// if one was sent, is fetched from its reference.
func (e *Engine) buildReport(ctx context.Context, sess *model.Session) (*model.CompletionReport, error) {
	when := e.now()
	if sess.SubmissionTime != nil {
		when = *sess.SubmissionTime
	}
	header := fmt.Sprintf("%sUTC\nUser %s %s:",
		when.UTC().Format(reportTimeLayout), sess.UserInfo, e.msgs.OperatorComplete)

	var parts []string
	for _, q := range sess.Questions {
		if q.Kind == model.KindPicture || q.Response == model.AnswerSkipped {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:\n%s", q.ResponseKey, q.Response))
	}

	report := &model.CompletionReport{
		ID:     uuid.NewString(),
		Header: header,
		Body:   strings.Join(parts, "\n\n"),
	}

	for _, q := range sess.Questions {
		if q.Kind != model.KindPicture {
			continue
		}
		if q.Answered() && q.Response != model.AnswerSkipped {
			img, err := e.files.Fetch(ctx, q.Response)
			if err != nil {
				return nil, fmt.Errorf("fetch report image %q: %w", q.Response, err)
			}
			report.Image = img
		}
		// Only one picture question is supported; the catalog loader
		// enforces it.
		break
	}

	return report, nil
}

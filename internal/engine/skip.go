package engine

import (
	"strconv"

	"github.com/dkarpov/fitbot/internal/model"
)

// ShouldSkip decides whether the question at the session's pointer must
// be auto-answered as skipped. A question skips when its single-pair
// condition matches an earlier question's recorded response, compared
// as strings. An unresolved condition (referenced question not yet
// answered, or no match) never skips.
func ShouldSkip(sess *model.Session) bool {
	cond := sess.Current().SkipCondition
	if cond == nil {
		return false
	}
	want := strconv.FormatBool(cond.Value)
	for _, q := range sess.Questions[:sess.CurrentQuestionIndex] {
		if q.ResponseKey == cond.Key && q.Response == want {
			return true
		}
	}
	return false
}

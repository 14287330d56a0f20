package model

import (
	"time"
)

// InputKind is the type tag governing how a question's answer is
// rendered and validated.
type InputKind string

const (
	KindText    InputKind = "text"
	KindEmail   InputKind = "email"
	KindNumber  InputKind = "number"
	KindBoolean InputKind = "boolean"
	KindOptions InputKind = "options"
	KindPicture InputKind = "picture"
)

// Boolean answers arrive as these exact tokens; the transport renders
// them as a Yes/No widget whose buttons carry the token values.
const (
	BoolTrue  = "true"
	BoolFalse = "false"
)

// AnswerSkipped is the sentinel response recorded for questions that
// were auto-skipped by a skip condition.
const AnswerSkipped = "skipped"

// Option is a single choice in an options question.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Link is an optional URL attached to a pre-message.
type Link struct {
	Placeholder string `json:"placeholder"`
	URL         string `json:"url"`
}

// PreMessage is introductory text shown before a question's prompt.
type PreMessage struct {
	Text string `json:"text"`
	Link *Link  `json:"link,omitempty"`
}

// SkipCondition causes a question to be auto-answered as skipped when
// an earlier question's response matches the expected value.
type SkipCondition struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// Question is one entry in the questionnaire catalog. Response is empty
// until the question is answered or skipped.
type Question struct {
	Text          string         `json:"text"`
	ResponseKey   string         `json:"response_key"`
	Placeholder   string         `json:"placeholder,omitempty"`
	Kind          InputKind      `json:"kind"`
	Options       []Option       `json:"options,omitempty"`
	PreMessage    *PreMessage    `json:"pre_message,omitempty"`
	SkipCondition *SkipCondition `json:"skip_condition,omitempty"`
	Response      string         `json:"response,omitempty"`
}

// OptionValues returns the option values used to validate an options
// answer.
func (q Question) OptionValues() []string {
	values := make([]string, len(q.Options))
	for i, o := range q.Options {
		values[i] = o.Value
	}
	return values
}

// Answered reports whether the question has a recorded response
// (including the skipped sentinel).
func (q Question) Answered() bool {
	return q.Response != ""
}

// Session is the per-user progress record over the question catalog.
// It holds a full snapshot of the catalog so that responses recorded
// for one user never alias another user's questions.
type Session struct {
	UserID               string     `json:"user_id"`
	UserInfo             string     `json:"user_info"`
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	SubmissionTime       *time.Time `json:"submission_time,omitempty"`
}

// NewSession builds a fresh session at index 0 from a copy of the
// catalog.
func NewSession(userID, userInfo string, catalog []Question) *Session {
	questions := make([]Question, len(catalog))
	copy(questions, catalog)
	return &Session{
		UserID:    userID,
		UserInfo:  userInfo,
		Questions: questions,
	}
}

// Current returns the question at the progress pointer. It must not be
// called on a complete session.
func (s *Session) Current() *Question {
	return &s.Questions[s.CurrentQuestionIndex]
}

// Complete reports whether every question has been answered or skipped.
func (s *Session) Complete() bool {
	return s.CurrentQuestionIndex == len(s.Questions)
}

// ValidationResult is the outcome of checking a raw answer against its
// input kind's rule. Errors holds every applicable message, not just
// the first.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// CompletionReport is the header/body/image payload assembled from a
// completed session for delivery on the operator channel.
type CompletionReport struct {
	ID     string `json:"id"`
	Header string `json:"header"`
	Body   string `json:"body"`
	Image  []byte `json:"image,omitempty"`
}

// Package engine implements the questionnaire session state machine:
// resume-or-create, skip evaluation, answer validation, progress
// advancement, and completion handling.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dkarpov/fitbot/internal/messages"
	"github.com/dkarpov/fitbot/internal/model"
	"github.com/dkarpov/fitbot/internal/transport"
	"github.com/dkarpov/fitbot/internal/validate"
)

// Store is the external per-user session cache. Get returns (nil, nil)
// when no session exists; expiry is the store's concern.
type Store interface {
	Get(ctx context.Context, userID string) (*model.Session, error)
	Set(ctx context.Context, userID string, sess *model.Session) error
	Delete(ctx context.Context, userID string) error
}

// OperatorSink delivers completion reports and failure notices on the
// operator channel.
type OperatorSink interface {
	DeliverReport(ctx context.Context, report *model.CompletionReport) error
	Notify(ctx context.Context, text string) error
}

// FileFetcher resolves an uploaded image reference to its bytes.
type FileFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// User identifies the respondent behind an inbound event.
type User struct {
	ID   string
	Info string
}

// Engine orchestrates one questionnaire pipeline per inbound event.
// All collaborators are injected; the engine keeps no per-user state of
// its own.
type Engine struct {
	catalog  []model.Question
	store    Store
	operator OperatorSink
	files    FileFetcher
	msgs     messages.Messages

	now func() time.Time
}

// New creates an engine over the given catalog and collaborators.
func New(catalog []model.Question, store Store, operator OperatorSink, files FileFetcher, msgs messages.Messages) *Engine {
	return &Engine{
		catalog:  catalog,
		store:    store,
		operator: operator,
		files:    files,
		msgs:     msgs,
		now:      time.Now,
	}
}

// reply accumulates the ordered outbound messages of one pipeline.
type reply struct {
	messages []transport.Message
}

func (r *reply) add(m transport.Message) {
	r.messages = append(r.messages, m)
}

// Begin resumes an in-progress session or creates a fresh one, greets
// accordingly, and presents the current question.
func (e *Engine) Begin(ctx context.Context, user User) ([]transport.Message, error) {
	sess, err := e.loadOrCreate(ctx, user)
	if err != nil {
		return nil, err
	}
	r := new(reply)
	if sess.CurrentQuestionIndex == 0 {
		r.add(transport.Text(e.msgs.StartNewSession))
	} else {
		r.add(transport.Text(e.msgs.ContinueSession))
	}
	if err := e.present(ctx, sess, r); err != nil {
		return nil, err
	}
	return r.messages, nil
}

// Restart forces the session back to the first question. Previously
// recorded responses stay in the snapshot until overwritten by
// re-answering.
func (e *Engine) Restart(ctx context.Context, user User) ([]transport.Message, error) {
	sess, err := e.loadOrCreate(ctx, user)
	if err != nil {
		return nil, err
	}
	sess.CurrentQuestionIndex = 0
	if err := e.store.Set(ctx, sess.UserID, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	r := new(reply)
	r.add(transport.Text(e.msgs.RestartSession))
	if err := e.present(ctx, sess, r); err != nil {
		return nil, err
	}
	return r.messages, nil
}

// RewindOne moves the pointer back by exactly one question, floored at
// zero. Without a stored session it behaves like Restart.
func (e *Engine) RewindOne(ctx context.Context, user User) ([]transport.Message, error) {
	sess, err := e.store.Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return e.Restart(ctx, user)
	}

	r := new(reply)
	if sess.CurrentQuestionIndex == 0 {
		r.add(transport.Text(e.msgs.FirstQuestionEdit))
	} else {
		sess.CurrentQuestionIndex--
		if err := e.store.Set(ctx, sess.UserID, sess); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}
	if err := e.present(ctx, sess, r); err != nil {
		return nil, err
	}
	return r.messages, nil
}

// SubmitAnswer validates a typed (or widget-chosen) answer against the
// current question. Invalid input re-presents the same question with
// every validator error; valid input is recorded and the next question
// presented.
func (e *Engine) SubmitAnswer(ctx context.Context, user User, input string) ([]transport.Message, error) {
	sess, err := e.store.Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return e.restartLost(ctx, user)
	}

	q := sess.Current()
	r := new(reply)
	if res := validate.Answer(q.Kind, input, q.OptionValues()); !res.IsValid {
		r.add(transport.Errors(res.Errors))
		e.prompt(sess, r)
		return r.messages, nil
	}
	if err := e.record(ctx, sess, input, r); err != nil {
		return nil, err
	}
	return r.messages, nil
}

// SubmitImage records an uploaded image reference for a picture
// question, bypassing text validation. For any other question kind the
// upload is invalid input and the question is re-presented.
func (e *Engine) SubmitImage(ctx context.Context, user User, ref string) ([]transport.Message, error) {
	sess, err := e.store.Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return e.restartLost(ctx, user)
	}

	r := new(reply)
	if sess.Current().Kind != model.KindPicture {
		r.add(transport.Errors([]string{ErrUnexpectedPicture}))
		e.prompt(sess, r)
		return r.messages, nil
	}
	if err := e.record(ctx, sess, ref, r); err != nil {
		return nil, err
	}
	return r.messages, nil
}

// ErrUnexpectedPicture is surfaced when an image arrives for a question
// that expects a typed answer.
const ErrUnexpectedPicture = "A picture is not expected here, please answer the question above"

// restartLost handles an answer arriving after the stored session
// expired: inform the user and start over transparently.
func (e *Engine) restartLost(ctx context.Context, user User) ([]transport.Message, error) {
	slog.Info("session expired mid-conversation, restarting", "user_id", user.ID)
	notice := transport.Text(e.msgs.SessionRestarted)
	msgs, err := e.Restart(ctx, user)
	if err != nil {
		return nil, err
	}
	return append([]transport.Message{notice}, msgs...), nil
}

// loadOrCreate returns the stored session for the user, or creates and
// persists a fresh one at index 0.
func (e *Engine) loadOrCreate(ctx context.Context, user User) (*model.Session, error) {
	sess, err := e.store.Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess != nil {
		return sess, nil
	}
	sess = model.NewSession(user.ID, user.Info, e.catalog)
	if err := e.store.Set(ctx, user.ID, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	slog.Info("created session", "user_id", user.ID, "questions", len(sess.Questions))
	return sess, nil
}

// present shows the question at the pointer: skip-eligible questions
// are recorded as skipped and the pointer advances until a question
// that must actually be asked (or completion) is reached, so skip
// chains never leak intermediate prompts.
func (e *Engine) present(ctx context.Context, sess *model.Session, r *reply) error {
	if ShouldSkip(sess) {
		return e.record(ctx, sess, model.AnswerSkipped, r)
	}
	q := sess.Current()
	if q.PreMessage != nil {
		r.add(transport.Pre(q.PreMessage))
	}
	e.prompt(sess, r)
	return nil
}

// prompt emits only the question's prompt, shaped by its input kind.
// Used both on first presentation and when re-presenting after invalid
// input, so choice widgets are re-rendered and the user keeps controls.
func (e *Engine) prompt(sess *model.Session, r *reply) {
	q := sess.Current()
	switch q.Kind {
	case model.KindBoolean:
		r.add(transport.BooleanPrompt(q.Text))
	case model.KindOptions:
		r.add(transport.OptionsPrompt(q.Text, q.Options))
	case model.KindPicture:
		r.add(transport.PicturePrompt(q.Text))
	default:
		r.add(transport.Prompt(q.Text, q.Placeholder))
	}
}

// record writes the response, advances the pointer, and either finishes
// the questionnaire or persists and presents the next question.
func (e *Engine) record(ctx context.Context, sess *model.Session, value string, r *reply) error {
	sess.Current().Response = value
	sess.CurrentQuestionIndex++
	if sess.Complete() {
		return e.finish(ctx, sess, r)
	}
	if err := e.store.Set(ctx, sess.UserID, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return e.present(ctx, sess, r)
}

// finish acknowledges the respondent, delivers the completion report to
// the operator channel, and drops the session from the store. Report
// failures are never shown to the respondent; they surface as a notice
// on the operator channel instead.
func (e *Engine) finish(ctx context.Context, sess *model.Session, r *reply) error {
	now := e.now()
	sess.SubmissionTime = &now
	r.add(transport.Text(e.msgs.SurveyComplete))

	report, err := e.buildReport(ctx, sess)
	if err == nil {
		err = e.operator.DeliverReport(ctx, report)
	}
	if err != nil {
		slog.Error("completion report delivery failed", "user_id", sess.UserID, "error", err)
		if nerr := e.operator.Notify(ctx, e.msgs.OperatorReportError); nerr != nil {
			slog.Error("operator failure notice failed", "user_id", sess.UserID, "error", nerr)
		}
	}

	if err := e.store.Delete(ctx, sess.UserID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	slog.Info("questionnaire complete", "user_id", sess.UserID)
	return nil
}

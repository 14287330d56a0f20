package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dkarpov/fitbot/internal/messages"
	"github.com/dkarpov/fitbot/internal/model"
	"github.com/dkarpov/fitbot/internal/store"
	"github.com/dkarpov/fitbot/internal/transport"
)

type recordingSink struct {
	reports    []*model.CompletionReport
	notices    []string
	deliverErr error
}

func (s *recordingSink) DeliverReport(_ context.Context, r *model.CompletionReport) error {
	if s.deliverErr != nil {
		return s.deliverErr
	}
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) Notify(_ context.Context, text string) error {
	s.notices = append(s.notices, text)
	return nil
}

type fakeFetcher struct {
	files map[string][]byte
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[ref]
	if !ok {
		return nil, fmt.Errorf("no file %q", ref)
	}
	return data, nil
}

func testQuestions() []model.Question {
	return []model.Question{
		{Text: "Please enter your email", ResponseKey: "Email", Placeholder: "E.g.: me@domain.com", Kind: model.KindEmail},
		{Text: "Do you have any chronic diseases?", ResponseKey: "Has Chronic Diseases", Kind: model.KindBoolean},
		{
			Text: "What kind of chronic diseases?", ResponseKey: "Chronic Diseases", Kind: model.KindText,
			SkipCondition: &model.SkipCondition{Key: "Has Chronic Diseases", Value: false},
		},
		{
			Text: "Choose your goal:", ResponseKey: "Goal", Kind: model.KindOptions,
			PreMessage: &model.PreMessage{Text: "Step 2 — YOUR GOAL"},
			Options:    []model.Option{{Label: "Bulk", Value: "bulk"}, {Label: "Weight Cutting", Value: "cut"}},
		},
		{Text: "Please send a picture of your current shape", ResponseKey: "Current Shape", Kind: model.KindPicture},
	}
}

type testEnv struct {
	eng     *Engine
	store   *store.Memory
	sink    *recordingSink
	fetcher *fakeFetcher
	msgs    messages.Messages
}

func newTestEngine(t *testing.T, questions []model.Question) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   store.NewMemory(0),
		sink:    &recordingSink{},
		fetcher: &fakeFetcher{files: map[string][]byte{"photo-ref": []byte("jpeg-bytes")}},
		msgs:    messages.Default(),
	}
	env.eng = New(questions, env.store, env.sink, env.fetcher, env.msgs)
	env.eng.now = func() time.Time { return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC) }
	return env
}

func (env *testEnv) session(t *testing.T, userID string) *model.Session {
	t.Helper()
	sess, err := env.store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return sess
}

func kinds(msgs []transport.Message) []transport.MessageKind {
	out := make([]transport.MessageKind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}

var alex = User{ID: "42", Info: "@alex"}

func TestBeginNewUser(t *testing.T) {
	env := newTestEngine(t, testQuestions())

	msgs, err := env.eng.Begin(context.Background(), alex)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d: %v", len(msgs), kinds(msgs))
	}
	if msgs[0].Text != env.msgs.StartNewSession {
		t.Errorf("expected starting greeting, got %q", msgs[0].Text)
	}
	if msgs[1].Kind != transport.MessagePrompt || msgs[1].Text != "Please enter your email" {
		t.Errorf("expected first question prompt, got %+v", msgs[1])
	}
	if msgs[1].Placeholder != "E.g.: me@domain.com" {
		t.Errorf("expected placeholder hint, got %q", msgs[1].Placeholder)
	}

	sess := env.session(t, alex.ID)
	if sess == nil {
		t.Fatal("expected a persisted session")
	}
	if sess.CurrentQuestionIndex != 0 {
		t.Errorf("expected index 0, got %d", sess.CurrentQuestionIndex)
	}
	if sess.UserInfo != "@alex" {
		t.Errorf("expected user info propagated, got %q", sess.UserInfo)
	}
}

func TestBeginResumesInProgress(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.eng.SubmitAnswer(ctx, alex, "me@domain.com"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	msgs, err := env.eng.Begin(ctx, alex)
	if err != nil {
		t.Fatalf("Begin resume: %v", err)
	}
	if msgs[0].Text != env.msgs.ContinueSession {
		t.Errorf("expected resuming greeting, got %q", msgs[0].Text)
	}
	if msgs[1].Kind != transport.MessageBooleanPrompt {
		t.Errorf("expected boolean prompt for the second question, got %+v", msgs[1])
	}
}

func TestInvalidEmailKeepsPointer(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	msgs, err := env.eng.SubmitAnswer(ctx, alex, "not-an-email")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	if msgs[0].Kind != transport.MessageErrors || len(msgs[0].Errors) == 0 {
		t.Fatalf("expected validation errors first, got %+v", msgs[0])
	}
	// The same question is re-presented.
	if msgs[1].Kind != transport.MessagePrompt || msgs[1].Text != "Please enter your email" {
		t.Errorf("expected the email prompt again, got %+v", msgs[1])
	}

	sess := env.session(t, alex.ID)
	if sess.CurrentQuestionIndex != 0 {
		t.Errorf("pointer must not move on invalid input, got %d", sess.CurrentQuestionIndex)
	}
	if sess.Questions[0].Answered() {
		t.Error("no response must be recorded for invalid input")
	}
}

func TestInvalidChoiceRerendersWidget(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.eng.SubmitAnswer(ctx, alex, "me@domain.com"); err != nil {
		t.Fatalf("SubmitAnswer email: %v", err)
	}

	msgs, err := env.eng.SubmitAnswer(ctx, alex, "nope")
	if err != nil {
		t.Fatalf("SubmitAnswer boolean: %v", err)
	}
	if msgs[0].Kind != transport.MessageErrors {
		t.Fatalf("expected errors, got %+v", msgs[0])
	}
	// The widget comes back so the user is not left without controls.
	if msgs[1].Kind != transport.MessageBooleanPrompt {
		t.Errorf("expected the boolean widget again, got %+v", msgs[1])
	}
}

func TestSkipChainCascades(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.eng.SubmitAnswer(ctx, alex, "me@domain.com"); err != nil {
		t.Fatalf("SubmitAnswer email: %v", err)
	}

	// Answering "false" makes the dependent question skip straight to the
	// goal question: no prompt leaks for the skipped one.
	msgs, err := env.eng.SubmitAnswer(ctx, alex, "false")
	if err != nil {
		t.Fatalf("SubmitAnswer boolean: %v", err)
	}
	want := []transport.MessageKind{transport.MessagePre, transport.MessageOptionsPrompt}
	got := kinds(msgs)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(msgs[1].Options) != 2 {
		t.Errorf("expected 2 options in the prompt, got %+v", msgs[1].Options)
	}

	sess := env.session(t, alex.ID)
	if sess.CurrentQuestionIndex != 3 {
		t.Errorf("expected pointer at 3, got %d", sess.CurrentQuestionIndex)
	}
	if sess.Questions[2].Response != model.AnswerSkipped {
		t.Errorf("expected skipped sentinel, got %q", sess.Questions[2].Response)
	}
}

func TestNoSkipWhenConditionUnresolved(t *testing.T) {
	questions := testQuestions()
	sess := model.NewSession("7", "@kim", questions)
	sess.CurrentQuestionIndex = 2

	// The referenced question was never answered: do not skip.
	if ShouldSkip(sess) {
		t.Error("unresolved condition must not skip")
	}

	sess.Questions[1].Response = "true"
	if ShouldSkip(sess) {
		t.Error("non-matching response must not skip")
	}

	sess.Questions[1].Response = "false"
	if !ShouldSkip(sess) {
		t.Error("matching response must skip")
	}
	// Pure over the answered-so-far state: same input, same decision.
	if !ShouldSkip(sess) {
		t.Error("ShouldSkip must be deterministic")
	}
}

func TestImageForTextQuestionRejected(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	msgs, err := env.eng.SubmitImage(ctx, alex, "photo-ref")
	if err != nil {
		t.Fatalf("SubmitImage: %v", err)
	}
	if msgs[0].Kind != transport.MessageErrors {
		t.Fatalf("expected errors, got %+v", msgs[0])
	}
	if env.session(t, alex.ID).CurrentQuestionIndex != 0 {
		t.Error("pointer must not move for a misplaced image")
	}
}

func TestTextForPictureQuestionRejected(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()
	completeToPicture(t, env)

	msgs, err := env.eng.SubmitAnswer(ctx, alex, "here you go")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if msgs[0].Kind != transport.MessageErrors {
		t.Fatalf("expected errors, got %+v", msgs[0])
	}
	if msgs[1].Kind != transport.MessagePicturePrompt {
		t.Errorf("expected the picture request again, got %+v", msgs[1])
	}
}

// completeToPicture answers everything up to the final picture question.
func completeToPicture(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, answer := range []string{"me@domain.com", "false", "cut"} {
		if _, err := env.eng.SubmitAnswer(ctx, alex, answer); err != nil {
			t.Fatalf("SubmitAnswer %q: %v", answer, err)
		}
	}
	if got := env.session(t, alex.ID).CurrentQuestionIndex; got != 4 {
		t.Fatalf("expected pointer at the picture question, got %d", got)
	}
}

func TestCompletionReport(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()
	completeToPicture(t, env)

	msgs, err := env.eng.SubmitImage(ctx, alex, "photo-ref")
	if err != nil {
		t.Fatalf("SubmitImage: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != env.msgs.SurveyComplete {
		t.Fatalf("expected only the completion ack, got %v", msgs)
	}

	if len(env.sink.reports) != 1 {
		t.Fatalf("expected 1 delivered report, got %d", len(env.sink.reports))
	}
	report := env.sink.reports[0]

	if report.ID == "" {
		t.Error("expected a report id")
	}
	if !strings.Contains(report.Header, "@alex") {
		t.Errorf("expected user info in header, got %q", report.Header)
	}
	if !strings.Contains(report.Header, "14-03-2026_15:09:26UTC") {
		t.Errorf("expected submission timestamp in header, got %q", report.Header)
	}

	// Body lists answered questions in catalog order, excluding the
	// skipped entry and the picture entry.
	wantBody := "Email:\nme@domain.com\n\nHas Chronic Diseases:\nfalse\n\nGoal:\ncut"
	if report.Body != wantBody {
		t.Errorf("unexpected body:\n%q\nwant:\n%q", report.Body, wantBody)
	}
	if string(report.Image) != "jpeg-bytes" {
		t.Errorf("expected fetched image bytes, got %q", report.Image)
	}

	// The session is gone once delivery was attempted.
	if env.session(t, alex.ID) != nil {
		t.Error("expected session deleted after completion")
	}
}

func TestCompletionViaSkipChain(t *testing.T) {
	questions := []model.Question{
		{Text: "Is this your first cycle?", ResponseKey: "Is First Cycle", Kind: model.KindBoolean},
		{
			Text: "How long was your previous cycle?", ResponseKey: "Previous Cycle Duration", Kind: model.KindText,
			SkipCondition: &model.SkipCondition{Key: "Is First Cycle", Value: true},
		},
		{
			Text: "Describe your results", ResponseKey: "Previous Cycle Results", Kind: model.KindText,
			SkipCondition: &model.SkipCondition{Key: "Is First Cycle", Value: true},
		},
	}
	env := newTestEngine(t, questions)
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	msgs, err := env.eng.SubmitAnswer(ctx, alex, "true")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	// Both trailing questions skip, so the single answer completes the
	// questionnaire in one step.
	if len(msgs) != 1 || msgs[0].Text != env.msgs.SurveyComplete {
		t.Fatalf("expected only the completion ack, got %v", msgs)
	}
	if len(env.sink.reports) != 1 {
		t.Fatalf("expected a delivered report, got %d", len(env.sink.reports))
	}
	if strings.Contains(env.sink.reports[0].Body, "Previous Cycle") {
		t.Errorf("skipped entries must not appear in the body: %q", env.sink.reports[0].Body)
	}
	if env.session(t, alex.ID) != nil {
		t.Error("expected session deleted after completion")
	}
}

func TestReportDeliveryFailureStaysOnOperatorChannel(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	env.sink.deliverErr = fmt.Errorf("webhook down")
	ctx := context.Background()
	completeToPicture(t, env)

	msgs, err := env.eng.SubmitImage(ctx, alex, "photo-ref")
	if err != nil {
		t.Fatalf("SubmitImage: %v", err)
	}

	// The respondent still gets a normal ack.
	if len(msgs) != 1 || msgs[0].Text != env.msgs.SurveyComplete {
		t.Fatalf("expected only the completion ack, got %v", msgs)
	}
	if len(env.sink.notices) != 1 || env.sink.notices[0] != env.msgs.OperatorReportError {
		t.Errorf("expected an operator failure notice, got %v", env.sink.notices)
	}
	if env.session(t, alex.ID) != nil {
		t.Error("session must be deleted even when delivery fails")
	}
}

func TestUnresolvableImageReferenceIsDeliveryError(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()
	completeToPicture(t, env)

	if _, err := env.eng.SubmitImage(ctx, alex, "missing-ref"); err != nil {
		t.Fatalf("SubmitImage: %v", err)
	}
	if len(env.sink.reports) != 0 {
		t.Errorf("expected no delivered report, got %d", len(env.sink.reports))
	}
	if len(env.sink.notices) != 1 {
		t.Errorf("expected an operator failure notice, got %v", env.sink.notices)
	}
}

func TestRestartKeepsEarlierAnswers(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.eng.SubmitAnswer(ctx, alex, "me@domain.com"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	msgs, err := env.eng.Restart(ctx, alex)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if msgs[0].Text != env.msgs.RestartSession {
		t.Errorf("expected restart message, got %q", msgs[0].Text)
	}
	if msgs[1].Kind != transport.MessagePrompt || msgs[1].Text != "Please enter your email" {
		t.Errorf("expected the first question again, got %+v", msgs[1])
	}

	sess := env.session(t, alex.ID)
	if sess.CurrentQuestionIndex != 0 {
		t.Errorf("expected index reset to 0, got %d", sess.CurrentQuestionIndex)
	}
	// The old answer stays in the snapshot until overwritten.
	if sess.Questions[0].Response != "me@domain.com" {
		t.Errorf("expected earlier answer retained, got %q", sess.Questions[0].Response)
	}
}

func TestRewindAtFirstQuestion(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	msgs, err := env.eng.RewindOne(ctx, alex)
	if err != nil {
		t.Fatalf("RewindOne: %v", err)
	}
	if msgs[0].Text != env.msgs.FirstQuestionEdit {
		t.Errorf("expected the first-question notice, got %q", msgs[0].Text)
	}
	if msgs[1].Kind != transport.MessagePrompt {
		t.Errorf("expected the question re-presented, got %+v", msgs[1])
	}
	if env.session(t, alex.ID).CurrentQuestionIndex != 0 {
		t.Error("rewind at index 0 must keep the pointer at 0")
	}
}

func TestRewindStepsBackOne(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.eng.SubmitAnswer(ctx, alex, "me@domain.com"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	msgs, err := env.eng.RewindOne(ctx, alex)
	if err != nil {
		t.Fatalf("RewindOne: %v", err)
	}
	if msgs[0].Kind != transport.MessagePrompt || msgs[0].Text != "Please enter your email" {
		t.Errorf("expected the previous question, got %+v", msgs[0])
	}
	if env.session(t, alex.ID).CurrentQuestionIndex != 0 {
		t.Error("expected pointer back at 0")
	}
}

func TestRewindWithoutSessionRestarts(t *testing.T) {
	env := newTestEngine(t, testQuestions())

	msgs, err := env.eng.RewindOne(context.Background(), alex)
	if err != nil {
		t.Fatalf("RewindOne: %v", err)
	}
	if msgs[0].Text != env.msgs.RestartSession {
		t.Errorf("expected restart behavior, got %q", msgs[0].Text)
	}
	if env.session(t, alex.ID) == nil {
		t.Error("expected a fresh session")
	}
}

func TestAnswerAfterSessionExpiry(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	// No Begin: the store has nothing for this user, as if the cache
	// entry expired mid-conversation.
	msgs, err := env.eng.SubmitAnswer(ctx, alex, "me@domain.com")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	if msgs[0].Text != env.msgs.SessionRestarted {
		t.Errorf("expected the session-lost notice first, got %q", msgs[0].Text)
	}
	if msgs[1].Text != env.msgs.RestartSession {
		t.Errorf("expected the restart message second, got %q", msgs[1].Text)
	}
	if msgs[2].Kind != transport.MessagePrompt {
		t.Errorf("expected the first prompt, got %+v", msgs[2])
	}
	sess := env.session(t, alex.ID)
	if sess == nil || sess.CurrentQuestionIndex != 0 {
		t.Error("expected a fresh session at index 0")
	}
}

func TestPointerNeverSkipsBackwardsOnAnswers(t *testing.T) {
	env := newTestEngine(t, testQuestions())
	ctx := context.Background()

	if _, err := env.eng.Begin(ctx, alex); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	last := 0
	for _, answer := range []string{"bad", "me@domain.com", "maybe", "true", "some details", "cut"} {
		if _, err := env.eng.SubmitAnswer(ctx, alex, answer); err != nil {
			t.Fatalf("SubmitAnswer %q: %v", answer, err)
		}
		sess := env.session(t, alex.ID)
		if sess.CurrentQuestionIndex < last {
			t.Fatalf("pointer moved backwards: %d -> %d", last, sess.CurrentQuestionIndex)
		}
		last = sess.CurrentQuestionIndex
	}
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examind/examportal-backend/internal/config"
	"github.com/examind/examportal-backend/internal/grading"
	"github.com/examind/examportal-backend/internal/model"
	"github.com/examind/examportal-backend/internal/recovery"
)

// fakeIntake records submission calls and fails with err when set.
type fakeIntake struct {
	mu       sync.Mutex
	err      error
	payloads []*model.SubmissionPayload
}

func (f *fakeIntake) Submit(_ context.Context, p *model.SubmissionPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

func (f *fakeIntake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeIntake) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// gateIntake blocks every Submit call until the test releases it with a
// result, so submission interleavings can be replayed deterministically.
type gateIntake struct {
	fakeIntake
	entered chan struct{}
	release chan error
}

func newGateIntake() *gateIntake {
	return &gateIntake{
		entered: make(chan struct{}),
		release: make(chan error),
	}
}

func (g *gateIntake) Submit(_ context.Context, p *model.SubmissionPayload) error {
	g.entered <- struct{}{}
	if err := <-g.release; err != nil {
		return err
	}
	g.mu.Lock()
	g.payloads = append(g.payloads, p)
	g.mu.Unlock()
	return nil
}

// eventLog captures engine events for assertions.
type eventLog struct {
	mu        sync.Mutex
	started   []StateView
	saved     []int
	warnings  []SignalKind
	submitted []SubmitOutcome
}

func (l *eventLog) SessionStarted(v StateView) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, v)
}

func (l *eventLog) ProgressSaved(remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saved = append(l.saved, remaining)
}

func (l *eventLog) WarningRaised(kind SignalKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, kind)
}

func (l *eventLog) SessionSubmitted(o SubmitOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitted = append(l.submitted, o)
}

func (l *eventLog) warningCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warnings)
}

func examDef(minutes, questions int) *model.AssessmentDefinition {
	def := &model.AssessmentDefinition{
		ID:              uuid.New(),
		Title:           "Midterm",
		Kind:            model.AssessmentKindExam,
		DurationMinutes: minutes,
	}
	for i := 0; i < questions; i++ {
		def.Questions = append(def.Questions, model.Question{
			ID:           uuid.New(),
			Prompt:       "Explain.",
			QuestionType: model.QuestionTypeFreeText,
			Marks:        1,
			OrderNum:     i,
		})
	}
	return def
}

func quizDef(minutes, questions int) *model.AssessmentDefinition {
	def := &model.AssessmentDefinition{
		ID:              uuid.New(),
		Title:           "Pop Quiz",
		Kind:            model.AssessmentKindQuiz,
		DurationMinutes: minutes,
	}
	for i := 0; i < questions; i++ {
		q := model.Question{
			ID:           uuid.New(),
			Prompt:       "Pick one.",
			QuestionType: model.QuestionTypeMultipleChoice,
			Marks:        1,
			OrderNum:     i,
		}
		for j := 0; j < 4; j++ {
			q.Options = append(q.Options, model.Option{
				ID:      uuid.New(),
				Text:    "option",
				Correct: j == 0,
			})
		}
		def.Questions = append(def.Questions, q)
	}
	return def
}

func newTestEngine(t *testing.T, def *model.AssessmentDefinition, intake grading.Intake, records recovery.Store, events Events) *Engine {
	t.Helper()
	return New(def, 42, Deps{
		Intake:  intake,
		Records: records,
		Events:  events,
		Log:     zerolog.Nop(),
	}, Options{Tick: time.Hour, AutosaveEvery: time.Hour})
}

func TestCountdownNeverNegative(t *testing.T) {
	def := examDef(1, 1) // 60 seconds
	e := newTestEngine(t, def, &fakeIntake{}, nil, nil)

	for i := 0; i < 59; i++ {
		if e.tick() {
			t.Fatalf("expired at tick %d, want expiry at 60", i+1)
		}
	}
	if got := e.State().RemainingSeconds; got != 1 {
		t.Fatalf("remaining = %d, want 1", got)
	}
	if !e.tick() {
		t.Fatal("tick 60 should report expiry")
	}
	if got := e.State().RemainingSeconds; got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}

	// Further ticks must not push the countdown below zero.
	e.tick()
	if got := e.State().RemainingSeconds; got != 0 {
		t.Fatalf("remaining after extra tick = %d, want 0", got)
	}
}

func TestSubmitIsAtMostOnce(t *testing.T) {
	intake := &fakeIntake{}
	e := newTestEngine(t, examDef(30, 2), intake, nil, nil)

	if _, err := e.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := e.Submit(context.Background(), TriggerManual); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second submit err = %v, want ErrAlreadySubmitted", err)
	}
	if _, err := e.Submit(context.Background(), TriggerTimeout); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("timeout after manual err = %v, want ErrAlreadySubmitted", err)
	}
	if intake.calls() != 1 {
		t.Fatalf("intake calls = %d, want 1", intake.calls())
	}
}

func TestSubmitPayloadCoversEveryQuestion(t *testing.T) {
	intake := &fakeIntake{}
	def := examDef(30, 3)
	e := newTestEngine(t, def, intake, nil, nil)

	if err := e.RecordAnswer(context.Background(), def.Questions[1].ID, model.Answer{Text: "because"}); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if _, err := e.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("submit: %v", err)
	}

	p := intake.payloads[0]
	if len(p.Answers) != 3 {
		t.Fatalf("payload answers = %d, want 3", len(p.Answers))
	}
	for i, rec := range p.Answers {
		if rec.QuestionID != def.Questions[i].ID {
			t.Fatalf("answer %d out of definition order", i)
		}
	}
	if p.Answers[0].Text != "" || p.Answers[1].Text != "because" || p.Answers[2].Text != "" {
		t.Fatalf("unexpected answer texts: %+v", p.Answers)
	}
}

func TestManualSubmitFailureAllowsRetry(t *testing.T) {
	intake := &fakeIntake{}
	intake.setErr(errors.New("intake down"))
	events := &eventLog{}
	e := newTestEngine(t, examDef(30, 1), intake, nil, events)

	if _, err := e.Submit(context.Background(), TriggerManual); err == nil {
		t.Fatal("submit should fail while intake is down")
	}
	if e.State().Submitted {
		t.Fatal("failed manual submit must leave the session open")
	}

	// The clock keeps running after a failed manual submit.
	e.tick()
	if got := e.State().RemainingSeconds; got != 30*60-1 {
		t.Fatalf("remaining = %d, want %d", got, 30*60-1)
	}

	intake.setErr(nil)
	if _, err := e.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !e.State().Submitted {
		t.Fatal("retry should close the session")
	}
}

func TestTimeoutSubmitFailureIsTerminal(t *testing.T) {
	intake := &fakeIntake{}
	intake.setErr(errors.New("intake down"))
	events := &eventLog{}
	e := newTestEngine(t, examDef(30, 1), intake, nil, events)

	if _, err := e.Submit(context.Background(), TriggerTimeout); err == nil {
		t.Fatal("timeout submit should surface the intake error")
	}
	if !e.State().Submitted {
		t.Fatal("failed timeout submit must still close the session")
	}

	// No retry path: the attempt is over.
	intake.setErr(nil)
	if _, err := e.Submit(context.Background(), TriggerManual); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("submit after terminal close err = %v, want ErrAlreadySubmitted", err)
	}
	if intake.calls() != 0 {
		t.Fatalf("intake calls = %d, want 0", intake.calls())
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.submitted) != 1 || !events.submitted[0].Terminal {
		t.Fatalf("submitted events = %+v, want one terminal outcome", events.submitted)
	}
}

func TestClockAutoSubmitsOnceOnExpiry(t *testing.T) {
	intake := &fakeIntake{}
	events := &eventLog{}
	def := examDef(1, 1)
	e := New(def, 42, Deps{
		Intake: intake,
		Events: events,
		Log:    zerolog.Nop(),
	}, Options{Tick: time.Millisecond, AutosaveEvery: time.Hour})

	e.Start(context.Background())
	defer e.stopClock()

	deadline := time.After(5 * time.Second)
	for intake.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("countdown never auto-submitted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Give a runaway clock time to double-submit, then verify it did not.
	time.Sleep(50 * time.Millisecond)
	if intake.calls() != 1 {
		t.Fatalf("intake calls = %d, want 1", intake.calls())
	}
	if !e.State().Submitted {
		t.Fatal("expired session should be submitted")
	}

	// Nothing was answered, so the payload carries one empty record.
	intake.mu.Lock()
	p := intake.payloads[0]
	intake.mu.Unlock()
	if len(p.Answers) != 1 || p.Answers[0].Text != "" || p.Answers[0].SelectedOption != nil {
		t.Fatalf("expiry payload = %+v, want a single empty record", p.Answers)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.submitted) != 1 || events.submitted[0].Trigger != TriggerTimeout {
		t.Fatalf("submitted events = %+v, want one timeout-triggered outcome", events.submitted)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	def := quizDef(10, 1)
	e := newTestEngine(t, def, &fakeIntake{}, nil, nil)

	if err := e.RecordAnswer(context.Background(), uuid.New(), model.Answer{Text: "x"}); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("unknown question err = %v, want ErrUnknownQuestion", err)
	}

	stray := uuid.New()
	if err := e.RecordAnswer(context.Background(), def.Questions[0].ID, model.Answer{SelectedOption: &stray}); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("stray option err = %v, want ErrUnknownOption", err)
	}

	valid := def.Questions[0].Options[1].ID
	if err := e.RecordAnswer(context.Background(), def.Questions[0].ID, model.Answer{SelectedOption: &valid}); err != nil {
		t.Fatalf("valid answer: %v", err)
	}

	if _, err := e.Submit(context.Background(), TriggerManual); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := e.RecordAnswer(context.Background(), def.Questions[0].ID, model.Answer{SelectedOption: &valid}); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("answer after submit err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestSetIndexIgnoresOutOfBounds(t *testing.T) {
	def := examDef(10, 3)
	e := newTestEngine(t, def, &fakeIntake{}, nil, nil)

	e.SetIndex(context.Background(), 2)
	if got := e.State().CurrentQuestionIndex; got != 2 {
		t.Fatalf("index = %d, want 2", got)
	}

	e.SetIndex(context.Background(), -1)
	e.SetIndex(context.Background(), 3)
	if got := e.State().CurrentQuestionIndex; got != 2 {
		t.Fatalf("index after out-of-bounds moves = %d, want 2", got)
	}
}

func TestWarningsAreOneShot(t *testing.T) {
	events := &eventLog{}
	e := newTestEngine(t, examDef(10, 1), &fakeIntake{}, nil, events)

	e.ReportSignal(SignalTabSwitch)
	e.ReportSignal(SignalTabSwitch)
	e.ReportSignal(SignalTabSwitch)

	if got := events.warningCount(); got != 1 {
		t.Fatalf("warning events = %d, want 1", got)
	}
	w := e.State().Warnings
	if !w.TabSwitchRaised || w.ScreenshotRaised {
		t.Fatalf("warnings = %+v", w)
	}

	e.ReportSignal(SignalScreenshot)
	if got := events.warningCount(); got != 2 {
		t.Fatalf("warning events = %d, want 2", got)
	}
	if !e.State().Warnings.ScreenshotRaised {
		t.Fatal("screenshot flag should be raised")
	}
}

func TestProgressRoundTripsThroughRecovery(t *testing.T) {
	records := recovery.NewMemoryStore()
	def := examDef(30, 2)
	ctx := context.Background()

	first := newTestEngine(t, def, &fakeIntake{}, records, nil)
	if err := first.RecordAnswer(ctx, def.Questions[0].ID, model.Answer{Text: "draft"}); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	first.SetIndex(ctx, 1)
	first.tick()
	first.tick()
	first.persist(ctx)

	second := newTestEngine(t, def, &fakeIntake{}, records, nil)
	second.restore(ctx)

	state := second.State()
	if state.Answers[def.Questions[0].ID].Text != "draft" {
		t.Fatalf("restored answers = %+v", state.Answers)
	}
	if state.CurrentQuestionIndex != 1 {
		t.Fatalf("restored index = %d, want 1", state.CurrentQuestionIndex)
	}
	if state.RemainingSeconds != 30*60-2 {
		t.Fatalf("restored remaining = %d, want %d", state.RemainingSeconds, 30*60-2)
	}
}

func TestRestoreIgnoresOtherAssessments(t *testing.T) {
	records := recovery.NewMemoryStore()
	def := examDef(30, 1)
	ctx := context.Background()

	snap := progressSnapshot{
		AssessmentID:     uuid.New(), // some other assessment
		RemainingSeconds: 5,
		Answers: map[uuid.UUID]model.Answer{
			def.Questions[0].ID: {Text: "stale"},
		},
	}
	raw, _ := json.Marshal(snap)
	key := config.CacheKey.RecoveryRecordKey(def.ID.String(), 42)
	if err := records.Write(ctx, key, raw); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	e := newTestEngine(t, def, &fakeIntake{}, records, nil)
	e.restore(ctx)

	state := e.State()
	if len(state.Answers) != 0 {
		t.Fatalf("answers restored from foreign record: %+v", state.Answers)
	}
	if state.RemainingSeconds != 30*60 {
		t.Fatalf("remaining = %d, want full budget", state.RemainingSeconds)
	}
}

func TestRestoreNeverExtendsTime(t *testing.T) {
	records := recovery.NewMemoryStore()
	def := examDef(30, 1)
	ctx := context.Background()
	key := config.CacheKey.RecoveryRecordKey(def.ID.String(), 42)

	for _, bogus := range []int{30 * 60, 30*60 + 500, -1} {
		raw, _ := json.Marshal(progressSnapshot{
			AssessmentID:     def.ID,
			RemainingSeconds: bogus,
		})
		if err := records.Write(ctx, key, raw); err != nil {
			t.Fatalf("seed record: %v", err)
		}

		e := newTestEngine(t, def, &fakeIntake{}, records, nil)
		e.restore(ctx)
		if got := e.State().RemainingSeconds; got != 30*60 {
			t.Fatalf("remaining = %d after restoring %d, want full budget", got, bogus)
		}
	}
}

func TestRestoreDiscardsMalformedRecord(t *testing.T) {
	records := recovery.NewMemoryStore()
	def := examDef(30, 1)
	ctx := context.Background()
	key := config.CacheKey.RecoveryRecordKey(def.ID.String(), 42)
	if err := records.Write(ctx, key, []byte("{not json")); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	e := newTestEngine(t, def, &fakeIntake{}, records, nil)
	e.restore(ctx)
	if got := e.State().RemainingSeconds; got != 30*60 {
		t.Fatalf("remaining = %d, want full budget", got)
	}
}

func TestSuccessfulSubmitErasesRecoveryRecord(t *testing.T) {
	records := recovery.NewMemoryStore()
	def := examDef(30, 1)
	ctx := context.Background()

	e := newTestEngine(t, def, &fakeIntake{}, records, nil)
	if err := e.RecordAnswer(ctx, def.Questions[0].ID, model.Answer{Text: "final"}); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	key := config.CacheKey.RecoveryRecordKey(def.ID.String(), 42)
	if _, err := records.Read(ctx, key); err != nil {
		t.Fatalf("record should exist before submit: %v", err)
	}

	if _, err := e.Submit(ctx, TriggerManual); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := records.Read(ctx, key); !errors.Is(err, recovery.ErrAbsent) {
		t.Fatalf("record read after submit err = %v, want ErrAbsent", err)
	}
}

func TestExitErasesRecordAndClosesSession(t *testing.T) {
	records := recovery.NewMemoryStore()
	def := examDef(30, 1)
	ctx := context.Background()

	e := newTestEngine(t, def, &fakeIntake{}, records, nil)
	if err := e.RecordAnswer(ctx, def.Questions[0].ID, model.Answer{Text: "draft"}); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	e.Exit(ctx)

	key := config.CacheKey.RecoveryRecordKey(def.ID.String(), 42)
	if _, err := records.Read(ctx, key); !errors.Is(err, recovery.ErrAbsent) {
		t.Fatalf("record read after exit err = %v, want ErrAbsent", err)
	}
	if err := e.RecordAnswer(ctx, def.Questions[0].ID, model.Answer{Text: "late"}); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("mutation after exit err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestExpiryDefersToManualSubmitInFlight(t *testing.T) {
	gate := newGateIntake()
	e := newTestEngine(t, examDef(1, 1), gate, nil, nil)
	ctx := context.Background()

	e.mu.Lock()
	e.remaining = 0
	e.mu.Unlock()

	// A manual submit enters the intake and stalls there.
	manualDone := make(chan error, 1)
	go func() {
		_, err := e.Submit(ctx, TriggerManual)
		manualDone <- err
	}()
	<-gate.entered

	// Expiry lands while the manual submit holds the in-flight slot. The
	// clock must yield and keep ticking instead of giving up.
	if e.autoSubmit() {
		t.Fatal("clock finished while a manual submit was in flight")
	}

	// The manual submit fails: the session is still open at zero.
	gate.release <- errors.New("intake down")
	if err := <-manualDone; err == nil {
		t.Fatal("manual submit should surface the intake error")
	}
	if e.State().Submitted {
		t.Fatal("failed manual submit must leave the session open")
	}

	// The very next tick re-fires expiry and the timeout submit lands.
	if !e.tick() {
		t.Fatal("tick at zero should re-fire expiry")
	}
	clockDone := make(chan bool, 1)
	go func() { clockDone <- e.autoSubmit() }()
	<-gate.entered
	gate.release <- nil
	if !<-clockDone {
		t.Fatal("timeout submit should finish the clock")
	}

	if !e.State().Submitted {
		t.Fatal("expired session should be submitted")
	}
	if gate.calls() != 1 {
		t.Fatalf("intake calls = %d, want 1", gate.calls())
	}
}

func TestRecordAnswerEmptyClearsStoredAnswer(t *testing.T) {
	def := examDef(10, 1)
	e := newTestEngine(t, def, &fakeIntake{}, nil, nil)
	ctx := context.Background()

	qid := def.Questions[0].ID
	if err := e.RecordAnswer(ctx, qid, model.Answer{Text: "draft"}); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if err := e.RecordAnswer(ctx, qid, model.Answer{}); err != nil {
		t.Fatalf("clear answer: %v", err)
	}
	if _, ok := e.State().Answers[qid]; ok {
		t.Fatal("cleared answer still stored")
	}
}

func TestDetachEventsKeepsNewerListener(t *testing.T) {
	e := newTestEngine(t, examDef(10, 1), &fakeIntake{}, nil, nil)

	first := &eventLog{}
	second := &eventLog{}
	e.SetEvents(first)
	e.SetEvents(second)

	// The older listener's teardown must not strip the newer one.
	e.DetachEvents(first)
	e.ReportSignal(SignalTabSwitch)
	if first.warningCount() != 0 || second.warningCount() != 1 {
		t.Fatalf("warnings first/second = %d/%d, want 0/1", first.warningCount(), second.warningCount())
	}

	e.DetachEvents(second)
	e.ReportSignal(SignalScreenshot)
	if second.warningCount() != 1 {
		t.Fatal("detached listener still receives events")
	}
}

func TestTickPausesWhileSubmitInFlight(t *testing.T) {
	e := newTestEngine(t, examDef(1, 1), &fakeIntake{}, nil, nil)

	e.mu.Lock()
	e.remaining = 1
	e.inFlight = true
	e.mu.Unlock()

	if e.tick() {
		t.Fatal("tick must be inert while a submission is in flight")
	}
	if got := e.State().RemainingSeconds; got != 1 {
		t.Fatalf("remaining = %d, want 1", got)
	}

	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
	if !e.tick() {
		t.Fatal("expiry should fire once the in-flight submission cleared")
	}
}

// Package session implements the timed assessment session engine: the
// component that conducts a single exam or quiz attempt from load to
// submission. An Engine owns its countdown clock and autosave ticker;
// stopping the engine stops them, so no timer can outlive its session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examind/examportal-backend/internal/config"
	"github.com/examind/examportal-backend/internal/grading"
	"github.com/examind/examportal-backend/internal/model"
	"github.com/examind/examportal-backend/internal/recovery"
)

// Engine state errors.
var (
	ErrAlreadySubmitted = errors.New("session: already submitted")
	ErrSubmitInFlight   = errors.New("session: submission already in flight")
	ErrTerminal         = errors.New("session: closed after timed-out submission failure")
	ErrUnknownQuestion  = errors.New("session: question does not belong to this assessment")
	ErrUnknownOption    = errors.New("session: option does not belong to this question")
)

// autoSubmitTimeout bounds the grading intake call made by the clock
// goroutine when the countdown expires.
const autoSubmitTimeout = 30 * time.Second

// Options tune engine timing. Zero values fall back to production defaults.
type Options struct {
	Tick          time.Duration // countdown granularity, default 1s
	AutosaveEvery time.Duration // recovery snapshot cadence, default 60s
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.AutosaveEvery <= 0 {
		o.AutosaveEvery = 60 * time.Second
	}
	return o
}

// Deps are the collaborators an engine talks to. Records may be nil for quiz
// sessions, which have no recovery persistence.
type Deps struct {
	Intake  grading.Intake
	Records recovery.Store
	Events  Events
	Log     zerolog.Logger
}

// Engine conducts one student's attempt at one assessment. All exported
// methods are safe for concurrent use; the submitted flag is a one-way
// transition enforced under the state mutex, which is what guarantees
// at-most-one effective submission when a manual submit races the countdown.
type Engine struct {
	def     *model.AssessmentDefinition
	ownerID int

	mu        sync.Mutex
	answers   map[uuid.UUID]model.Answer
	remaining int
	index     int
	submitted bool
	inFlight  bool
	terminal  bool
	warnings  Warnings
	result    *model.QuizResult

	intake    grading.Intake
	records   recovery.Store
	recordKey string
	events    Events
	log       zerolog.Logger
	opts      Options

	clockMu   sync.Mutex
	clockStop chan struct{}
}

// New creates an engine for the given definition and owner. The clock is not
// running until Start is called.
func New(def *model.AssessmentDefinition, ownerID int, deps Deps, opts Options) *Engine {
	if deps.Events == nil {
		deps.Events = NopEvents{}
	}
	e := &Engine{
		def:       def,
		ownerID:   ownerID,
		answers:   make(map[uuid.UUID]model.Answer),
		remaining: def.InitialSeconds(),
		intake:    deps.Intake,
		records:   deps.Records,
		recordKey: config.CacheKey.RecoveryRecordKey(def.ID.String(), ownerID),
		events:    deps.Events,
		opts:      opts.withDefaults(),
	}
	e.log = deps.Log.With().
		Str("component", "session_engine").
		Str("assessment_id", def.ID.String()).
		Int("student_id", ownerID).
		Logger()
	return e
}

// Start restores persisted progress if a matching record exists, starts the
// countdown clock and announces the session to the event listener.
func (e *Engine) Start(ctx context.Context) {
	e.restore(ctx)
	e.startClock()
	e.listener().SessionStarted(e.State())
	e.log.Info().Int("remaining_seconds", e.State().RemainingSeconds).Msg("Session started")
}

// Definition returns the immutable assessment this session runs against.
func (e *Engine) Definition() *model.AssessmentDefinition {
	return e.def
}

// OwnerID returns the student conducting this session.
func (e *Engine) OwnerID() int {
	return e.ownerID
}

// State returns a copy of the current session state.
func (e *Engine) State() StateView {
	e.mu.Lock()
	defer e.mu.Unlock()
	answers := make(map[uuid.UUID]model.Answer, len(e.answers))
	for k, v := range e.answers {
		answers[k] = v
	}
	return StateView{
		AssessmentID:         e.def.ID,
		Kind:                 e.def.Kind,
		Answers:              answers,
		RemainingSeconds:     e.remaining,
		CurrentQuestionIndex: e.index,
		Submitted:            e.submitted,
		Warnings:             e.warnings,
	}
}

// Result returns the locally graded quiz result, if the session is a
// submitted quiz.
func (e *Engine) Result() *model.QuizResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// SetEvents swaps the event listener, so a live stream can attach to an
// already running session. Passing nil detaches.
func (e *Engine) SetEvents(ev Events) {
	if ev == nil {
		ev = NopEvents{}
	}
	e.mu.Lock()
	e.events = ev
	e.mu.Unlock()
}

// DetachEvents clears the listener only if ev is still attached. A connection
// tearing down after a reconnect must not strip the newer connection's
// listener.
func (e *Engine) DetachEvents(ev Events) {
	e.mu.Lock()
	if e.events == ev {
		e.events = NopEvents{}
	}
	e.mu.Unlock()
}

func (e *Engine) listener() Events {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events
}

// ─── Answer store ───────────────────────────────────────────────────

// RecordAnswer upserts the answer for a question; an empty answer clears any
// stored one. For multiple-choice questions the selected option must belong
// to the question. Every accepted mutation snapshots progress on exam
// sessions.
func (e *Engine) RecordAnswer(ctx context.Context, questionID uuid.UUID, ans model.Answer) error {
	q := e.question(questionID)
	if q == nil {
		return ErrUnknownQuestion
	}
	if ans.SelectedOption != nil && !optionOf(q, *ans.SelectedOption) {
		return ErrUnknownOption
	}

	e.mu.Lock()
	if e.submitted || e.terminal {
		e.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if ans.Empty() {
		delete(e.answers, questionID)
	} else {
		e.answers[questionID] = ans
	}
	e.mu.Unlock()

	e.persist(ctx)
	return nil
}

// AttachFile records an uploaded file reference on a question's answer,
// keeping any text already entered. The upload itself happened elsewhere;
// the engine only remembers the reference.
func (e *Engine) AttachFile(ctx context.Context, questionID uuid.UUID, fileRef string) error {
	if e.question(questionID) == nil {
		return ErrUnknownQuestion
	}

	e.mu.Lock()
	if e.submitted || e.terminal {
		e.mu.Unlock()
		return ErrAlreadySubmitted
	}
	ans := e.answers[questionID]
	ans.FileReference = fileRef
	e.answers[questionID] = ans
	e.mu.Unlock()

	e.persist(ctx)
	return nil
}

// SetIndex moves the current-question cursor. Out-of-bounds values are a
// silent no-op, not an error.
func (e *Engine) SetIndex(ctx context.Context, i int) {
	if i < 0 || i >= len(e.def.Questions) {
		return
	}

	e.mu.Lock()
	if e.submitted || e.terminal {
		e.mu.Unlock()
		return
	}
	e.index = i
	e.mu.Unlock()

	e.persist(ctx)
}

func (e *Engine) question(id uuid.UUID) *model.Question {
	for i := range e.def.Questions {
		if e.def.Questions[i].ID == id {
			return &e.def.Questions[i]
		}
	}
	return nil
}

func optionOf(q *model.Question, optionID uuid.UUID) bool {
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			return true
		}
	}
	return false
}

// ─── Integrity signal monitor ───────────────────────────────────────

// ReportSignal raises the one-way warning flag for the given signal kind.
// The first occurrence of each kind notifies the event listener; repeats are
// silently ignored. Signals never touch answers, time or submission state.
func (e *Engine) ReportSignal(kind SignalKind) {
	e.mu.Lock()
	var first bool
	switch kind {
	case SignalTabSwitch:
		first = !e.warnings.TabSwitchRaised
		e.warnings.TabSwitchRaised = true
	case SignalScreenshot:
		first = !e.warnings.ScreenshotRaised
		e.warnings.ScreenshotRaised = true
	default:
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if first {
		e.log.Warn().Str("signal", string(kind)).Msg("Integrity signal raised")
		e.listener().WarningRaised(kind)
	}
}

// ─── Countdown clock ────────────────────────────────────────────────

// startClock launches the countdown goroutine, stopping any prior instance
// first so a restart can never leave two clocks ticking the same session.
func (e *Engine) startClock() {
	e.clockMu.Lock()
	if e.clockStop != nil {
		close(e.clockStop)
	}
	stop := make(chan struct{})
	e.clockStop = stop
	e.clockMu.Unlock()

	go e.runClock(stop)
}

// stopClock permanently stops the countdown and autosave tickers. Safe to
// call multiple times and from any goroutine.
func (e *Engine) stopClock() {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	if e.clockStop != nil {
		close(e.clockStop)
		e.clockStop = nil
	}
}

func (e *Engine) runClock(stop chan struct{}) {
	tick := time.NewTicker(e.opts.Tick)
	save := time.NewTicker(e.opts.AutosaveEvery)
	defer tick.Stop()
	defer save.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			if e.tick() && e.autoSubmit() {
				return
			}
		case <-save.C:
			e.persist(context.Background())
		}
	}
}

// autoSubmit runs the timeout submission after the countdown expired and
// reports whether the clock is done. A manual submit already in flight keeps
// the clock alive: if that submit fails, the session is still open at zero
// and the next tick re-fires expiry.
func (e *Engine) autoSubmit() bool {
	ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
	defer cancel()

	_, err := e.Submit(ctx, TriggerTimeout)
	switch {
	case err == nil, errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrTerminal):
		return true
	case errors.Is(err, ErrSubmitInFlight):
		return false
	default:
		// Submit already closed the session terminally.
		e.log.Error().Err(err).Msg("Auto-submit failed")
		return true
	}
}

// tick decrements the countdown by one second and reports whether it just
// reached zero. Inert once the session is submitted or closed.
func (e *Engine) tick() (expired bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.submitted || e.terminal || e.inFlight {
		return false
	}
	if e.remaining > 0 {
		e.remaining--
	}
	return e.remaining == 0
}

// ─── Recovery persistence ───────────────────────────────────────────

// progressSnapshot is the durable recovery record. uuid map keys marshal as
// strings, so the record round-trips through plain JSON.
type progressSnapshot struct {
	AssessmentID         uuid.UUID                  `json:"assessment_id"`
	Answers              map[uuid.UUID]model.Answer `json:"answers"`
	RemainingSeconds     int                        `json:"remaining_seconds"`
	CurrentQuestionIndex int                        `json:"current_question_index"`
}

// persist writes the current progress snapshot. Best effort: a failed write
// is logged, never surfaced, and never interrupts the session.
func (e *Engine) persist(ctx context.Context) {
	if e.records == nil {
		return
	}

	e.mu.Lock()
	if e.submitted || e.terminal {
		e.mu.Unlock()
		return
	}
	snap := progressSnapshot{
		AssessmentID:         e.def.ID,
		Answers:              make(map[uuid.UUID]model.Answer, len(e.answers)),
		RemainingSeconds:     e.remaining,
		CurrentQuestionIndex: e.index,
	}
	for k, v := range e.answers {
		snap.Answers[k] = v
	}
	e.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		e.log.Error().Err(err).Msg("Snapshot marshal failed")
		return
	}
	if err := e.records.Write(ctx, e.recordKey, raw); err != nil {
		e.log.Warn().Err(err).Msg("Snapshot write failed")
		return
	}
	e.listener().ProgressSaved(snap.RemainingSeconds)
}

// restore reads the recovery record once at session start. Malformed or
// mismatched records are discarded silently and the session starts fresh.
// A restored countdown can only shrink the time budget, never extend it.
func (e *Engine) restore(ctx context.Context) {
	if e.records == nil {
		return
	}

	raw, err := e.records.Read(ctx, e.recordKey)
	if errors.Is(err, recovery.ErrAbsent) {
		return
	}
	if err != nil {
		e.log.Warn().Err(err).Msg("Recovery record read failed, starting fresh")
		return
	}

	var snap progressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		e.log.Debug().Err(err).Msg("Discarding malformed recovery record")
		return
	}
	if snap.AssessmentID != e.def.ID {
		e.log.Debug().
			Str("record_assessment_id", snap.AssessmentID.String()).
			Msg("Discarding recovery record for different assessment")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for qid, ans := range snap.Answers {
		if e.def.HasQuestion(qid) {
			e.answers[qid] = ans
		}
	}
	if snap.RemainingSeconds >= 0 && snap.RemainingSeconds < e.def.InitialSeconds() {
		e.remaining = snap.RemainingSeconds
	}
	if snap.CurrentQuestionIndex >= 0 && snap.CurrentQuestionIndex < len(e.def.Questions) {
		e.index = snap.CurrentQuestionIndex
	}
	e.log.Info().
		Int("answers", len(e.answers)).
		Int("remaining_seconds", e.remaining).
		Msg("Session progress restored")
}

func (e *Engine) eraseRecord(ctx context.Context) {
	if e.records == nil {
		return
	}
	if err := e.records.Erase(ctx, e.recordKey); err != nil {
		e.log.Warn().Err(err).Msg("Recovery record erase failed")
	}
}

// ─── Submission coordinator ─────────────────────────────────────────

// Submit builds the final payload and hands it to the grading intake.
// The submitted flag is the sole at-most-once gate: once true, Submit is a
// no-op for any trigger. A failed manual submission leaves the session open
// for retry; a failed timeout submission closes the session terminally so
// the clock can never drive retry loops against an expired attempt.
func (e *Engine) Submit(ctx context.Context, trigger Trigger) (*model.QuizResult, error) {
	e.mu.Lock()
	if e.submitted {
		e.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	if e.terminal {
		e.mu.Unlock()
		return nil, ErrTerminal
	}
	if e.inFlight {
		e.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	e.inFlight = true

	payload := e.payloadLocked()
	var result *model.QuizResult
	if e.def.Kind == model.AssessmentKindQuiz {
		result = e.gradeLocked()
		payload.Score = &result.Score
	}
	e.mu.Unlock()

	err := e.intake.Submit(ctx, payload)

	e.mu.Lock()
	e.inFlight = false
	if err != nil {
		if trigger == TriggerTimeout {
			// The attempt is over either way; closing the session here is
			// what stops the clock from re-submitting an expired session.
			e.submitted = true
			e.terminal = true
			e.mu.Unlock()
			e.stopClock()
			e.log.Error().Err(err).Msg("Timed-out submission could not be recorded")
			e.listener().SessionSubmitted(SubmitOutcome{Trigger: trigger, Terminal: true, Err: err})
			return nil, fmt.Errorf("record timed-out submission: %w", err)
		}
		e.mu.Unlock()
		e.log.Warn().Err(err).Msg("Submission rejected, retry allowed")
		e.listener().SessionSubmitted(SubmitOutcome{Trigger: trigger, Err: err})
		return nil, fmt.Errorf("record submission: %w", err)
	}

	e.submitted = true
	e.result = result
	e.mu.Unlock()

	e.stopClock()
	e.eraseRecord(ctx)
	e.log.Info().Str("trigger", string(trigger)).Msg("Session submitted")
	e.listener().SessionSubmitted(SubmitOutcome{Trigger: trigger, Success: true, Result: result})
	return result, nil
}

// payloadLocked builds the submission payload with one entry per question,
// unanswered ones included with empty values. Caller holds e.mu.
func (e *Engine) payloadLocked() *model.SubmissionPayload {
	records := make([]model.AnswerRecord, 0, len(e.def.Questions))
	for _, q := range e.def.Questions {
		ans := e.answers[q.ID]
		records = append(records, model.AnswerRecord{
			QuestionID:     q.ID,
			Text:           ans.Text,
			FileReference:  ans.FileReference,
			SelectedOption: ans.SelectedOption,
		})
	}
	return &model.SubmissionPayload{
		SessionOwnerID: e.ownerID,
		AssessmentID:   e.def.ID,
		Kind:           e.def.Kind,
		Answers:        records,
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// Suspend stops the clock and, for exam sessions, writes a final snapshot so
// the attempt can resume after a restart. Used at server shutdown.
func (e *Engine) Suspend(ctx context.Context) {
	e.stopClock()
	e.persist(ctx)
}

// Exit tears the session down for good: the clock stops and the recovery
// record is erased. State mutations after Exit are rejected.
func (e *Engine) Exit(ctx context.Context) {
	e.stopClock()
	e.mu.Lock()
	if !e.submitted {
		e.terminal = true
	}
	e.mu.Unlock()
	e.eraseRecord(ctx)
	e.log.Info().Msg("Session exited")
}

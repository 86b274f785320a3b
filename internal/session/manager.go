package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examind/examportal-backend/internal/grading"
	"github.com/examind/examportal-backend/internal/model"
	"github.com/examind/examportal-backend/internal/recovery"
)

// Catalog is the assessment catalog collaborator the loader fetches
// definitions from.
type Catalog interface {
	FetchByID(ctx context.Context, id uuid.UUID) (*model.AssessmentDefinition, error)
}

// Manager is the session loader and registry: it fetches definitions,
// builds engines with the right collaborators per assessment kind, and owns
// their lifecycle. One live engine per assessment+student pair.
type Manager struct {
	catalog  Catalog
	intake   grading.Intake // exam submissions, synchronous
	recorder grading.Intake // quiz attempt recording, queued
	records  recovery.Store
	log      zerolog.Logger
	opts     Options

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates a Manager.
func NewManager(catalog Catalog, intake, recorder grading.Intake, records recovery.Store, log zerolog.Logger, opts Options) *Manager {
	return &Manager{
		catalog:  catalog,
		intake:   intake,
		recorder: recorder,
		records:  records,
		log:      log.With().Str("component", "session_manager").Logger(),
		opts:     opts,
		engines:  make(map[string]*Engine),
	}
}

func engineKey(assessmentID uuid.UUID, studentID int) string {
	return fmt.Sprintf("%s:%d", assessmentID, studentID)
}

// Start loads the assessment and starts a session engine for the student.
// Idempotent: an already running session is returned as-is, so a reload
// never spawns a second clock for the same attempt.
func (m *Manager) Start(ctx context.Context, assessmentID uuid.UUID, studentID int, events Events) (*Engine, error) {
	key := engineKey(assessmentID, studentID)

	m.mu.Lock()
	if existing, ok := m.engines[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	def, err := m.catalog.FetchByID(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load assessment: %w", err)
	}

	deps := Deps{Events: events, Log: m.log}
	switch def.Kind {
	case model.AssessmentKindQuiz:
		deps.Intake = m.recorder
	default:
		deps.Intake = m.intake
		deps.Records = m.records
	}

	engine := New(def, studentID, deps, m.opts)

	m.mu.Lock()
	if existing, ok := m.engines[key]; ok {
		// Lost a start race; the winner's clock is already running.
		m.mu.Unlock()
		return existing, nil
	}
	m.engines[key] = engine
	m.mu.Unlock()

	engine.Start(ctx)
	return engine, nil
}

// Get returns the running engine for the pair, if any.
func (m *Manager) Get(assessmentID uuid.UUID, studentID int) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[engineKey(assessmentID, studentID)]
	return e, ok
}

// Exit tears down the student's session and erases its recovery record.
func (m *Manager) Exit(ctx context.Context, assessmentID uuid.UUID, studentID int) bool {
	key := engineKey(assessmentID, studentID)

	m.mu.Lock()
	engine, ok := m.engines[key]
	if ok {
		delete(m.engines, key)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	engine.Exit(ctx)
	return true
}

// Remove drops a finished engine from the registry without touching its
// recovery record. Used after successful submission.
func (m *Manager) Remove(assessmentID uuid.UUID, studentID int) {
	m.mu.Lock()
	delete(m.engines, engineKey(assessmentID, studentID))
	m.mu.Unlock()
}

// Close suspends every running engine: clocks stop and exam sessions write a
// final snapshot so they can resume after a restart.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.engines = make(map[string]*Engine)
	m.mu.Unlock()

	for _, e := range engines {
		e.Suspend(ctx)
	}
	if len(engines) > 0 {
		m.log.Info().Int("count", len(engines)).Msg("Suspended running sessions")
	}
}

// Package model provides the backend-agnostic driver shell (spec §4.6): a
// tagged union over the four numerical engines in pkg/ibs, pkg/ode,
// pkg/sde and pkg/pde, exposing one Load/Reset/Next/Unload
// lifecycle and one `next()` stepping contract regardless of which engine
// is active.
package model

import (
	"fmt"
	"math"

	"github.com/evoludo-labs/evoludo-go/pkg/ibs"
	"github.com/evoludo-labs/evoludo-go/pkg/logging"
	"github.com/evoludo-labs/evoludo-go/pkg/ode"
	"github.com/evoludo-labs/evoludo-go/pkg/pde"
	"github.com/evoludo-labs/evoludo-go/pkg/sde"
)

// Kind names which engine backs a Model.
type Kind int

const (
	KindIBS Kind = iota
	KindODE
	KindSDE
	KindPDE
)

func (k Kind) String() string {
	switch k {
	case KindIBS:
		return "ibs"
	case KindODE:
		return "ode"
	case KindSDE:
		return "sde"
	case KindPDE:
		return "pde"
	default:
		return "unknown"
	}
}

// Mode names the phase a Model is currently being stepped in (spec §4.6
// "three Modes"): DYNAMICS advances the trajectory; STATISTICS_SAMPLE and
// STATISTICS_UPDATE drive repeated independent runs used to build
// statistics (e.g. fixation probabilities) without being mistaken for
// trajectory dynamics by listeners.
type Mode int

const (
	Dynamics Mode = iota
	StatisticsSample
	StatisticsUpdate
)

func (m Mode) String() string {
	switch m {
	case Dynamics:
		return "dynamics"
	case StatisticsSample:
		return "statistics-sample"
	case StatisticsUpdate:
		return "statistics-update"
	default:
		return "unknown"
	}
}

// PendingAction enumerates the actions a Model can be asked to perform at
// the next opportunity, queued by listeners mid-run rather than applied
// immediately, so in-flight steps finish on consistent state (spec §4.6).
type PendingAction int

const (
	NoAction PendingAction = iota
	ActionReset
	ActionInit
	ActionStop
	ActionSnapshot
)

// Engine is the common surface every backend adapter implements, letting
// Model drive any of them identically.
type Engine interface {
	// Step advances the engine by at most h (engine-specific units) and
	// reports the signed step actually taken and whether it converged.
	Step(h float64) (taken float64, converged bool, err error)
	// Time reports the engine's own clock (generation count or integrator time).
	Time() float64
	// PermitsMode reports whether this engine supports running under mode
	// (e.g. a deterministic ODE has no meaningful STATISTICS_SAMPLE phase).
	PermitsMode(mode Mode) bool
}

// Listener is notified of milestones reached during Next (spec §4.6
// "milestones/change listeners"): convergence, or a PendingAction a Model
// consumer queued asynchronously.
type Listener interface {
	OnMilestone(m *Model, action PendingAction)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(m *Model, action PendingAction)

func (f ListenerFunc) OnMilestone(m *Model, action PendingAction) { f(m, action) }

// Model is the tagged-variant driver: exactly one of IBS/ODE/SDE/PDE is
// non-nil, selected by Kind.
type Model struct {
	Kind Kind

	IBS *ibs.Model
	ODE *ode.Integrator
	SDE *sde.Integrator
	PDE *pde.PDE

	Mode Mode

	reportInterval float64
	pending        PendingAction
	listeners      []Listener

	loaded bool
}

// NewIBS, NewODE, NewSDE and NewPDE wrap an already-constructed engine in
// the tagged-variant shell.
func NewIBS(e *ibs.Model) *Model { return &Model{Kind: KindIBS, IBS: e} }
func NewODE(e *ode.Integrator) *Model { return &Model{Kind: KindODE, ODE: e} }
func NewSDE(e *sde.Integrator) *Model { return &Model{Kind: KindSDE, SDE: e} }
func NewPDE(e *pde.PDE) *Model { return &Model{Kind: KindPDE, PDE: e} }

// AddListener registers l to be notified of every milestone reached by Next.
func (m *Model) AddListener(l Listener) { m.listeners = append(m.listeners, l) }

// RequestAction queues action for the next call to Next, matching spec
// §4.6's asynchronous PendingAction queue (e.g. a UI requesting Reset while
// a long-running Next is in flight).
func (m *Model) RequestAction(action PendingAction) { m.pending = action }

func (m *Model) notify(action PendingAction) {
	for _, l := range m.listeners {
		l.OnMilestone(m, action)
	}
}

// Load validates the engine's configuration (spec §4.6 step "Load"),
// delegating to the backend's own Check and logging any warning it returns
// (e.g. a reverted adjusted-dynamics flag) through pkg/logging.
func (m *Model) Load() error {
	switch m.Kind {
	case KindIBS:
		if m.IBS == nil {
			return fmt.Errorf("model: IBS engine not set")
		}
		if err := m.IBS.Check(); err != nil {
			return fmt.Errorf("model: load: %w", err)
		}
	case KindODE:
		if m.ODE == nil {
			return fmt.Errorf("model: ODE engine not set")
		}
		warning, err := m.ODE.Check()
		if err != nil {
			return fmt.Errorf("model: load: %w", err)
		}
		if warning != nil {
			logging.Warnf("%v", warning)
		}
	case KindSDE:
		if m.SDE == nil {
			return fmt.Errorf("model: SDE engine not set")
		}
		warning, err := m.SDE.Check()
		if err != nil {
			return fmt.Errorf("model: load: %w", err)
		}
		if warning != nil {
			logging.Warnf("%v", warning)
		}
	case KindPDE:
		if m.PDE == nil {
			return fmt.Errorf("model: PDE engine not set")
		}
	default:
		return fmt.Errorf("model: unknown kind %v", m.Kind)
	}
	m.loaded = true
	return nil
}

// Reset re-applies Load's checks and clears any queued PendingAction; it
// does not touch the engine's state vector (use Init for that).
func (m *Model) Reset() error {
	m.pending = NoAction
	m.notify(ActionReset)
	return m.Load()
}

// PermitsMode reports whether the active engine supports mode; IBS and SDE
// support statistics phases (they are stochastic and benefit from repeated
// independent sampling), ODE and PDE are deterministic and only ever run
// under Dynamics (spec §4.6 "three Modes").
func (m *Model) PermitsMode(mode Mode) bool {
	if mode == Dynamics {
		return true
	}
	switch m.Kind {
	case KindIBS, KindSDE:
		return true
	default:
		return false
	}
}

// Time reports the active engine's own clock.
func (m *Model) Time() float64 {
	switch m.Kind {
	case KindIBS:
		return m.IBS.Generation
	case KindODE:
		return m.ODE.Time
	case KindSDE:
		return m.SDE.Time
	case KindPDE:
		return 0 // PDE has no scalar clock of its own; callers track wall steps externally.
	default:
		return math.NaN()
	}
}

// SetReportInterval sets the engine-time interval Next steps before
// returning control to the caller (spec §4.6 "report interval stepping").
func (m *Model) SetReportInterval(interval float64) { m.reportInterval = interval }

// Next advances the model until reportInterval engine-time has elapsed, a
// PendingAction was consumed, or the engine converged. It follows the
// spec's `next()` pseudo-contract: it returns a positive elapsed time on
// ordinary progress, or a strictly negative Δt to signal convergence, and
// never silently drops a queued PendingAction.
func (m *Model) Next() (float64, error) {
	if !m.loaded {
		if err := m.Load(); err != nil {
			return 0, err
		}
	}
	if m.pending != NoAction {
		action := m.pending
		m.pending = NoAction
		m.notify(action)
		if action == ActionStop {
			return -1, nil
		}
	}
	if !m.PermitsMode(m.Mode) {
		return 0, fmt.Errorf("model: %v engine does not permit mode %v", m.Kind, m.Mode)
	}

	elapsed := 0.0
	h := m.stepSize()

	for {
		taken, converged, err := m.step(h)
		if err != nil {
			return 0, err
		}
		elapsed += math.Abs(taken)
		if converged {
			m.notify(ActionSnapshot)
			return -elapsed, nil
		}
		if m.reportInterval <= 0 || elapsed >= m.reportInterval || m.pending != NoAction {
			break
		}
	}
	return elapsed, nil
}

func (m *Model) stepSize() float64 {
	switch m.Kind {
	case KindODE:
		if m.ODE.Accuracy > 0 {
			return 0.01
		}
		return 0.01
	case KindSDE:
		return 0.01
	case KindPDE:
		return 0.01
	default: // IBS paces itself; h is advisory only
		return 1
	}
}

func (m *Model) step(h float64) (taken float64, converged bool, err error) {
	switch m.Kind {
	case KindIBS:
		dt, err := m.IBS.Step()
		if err != nil {
			return 0, false, err
		}
		return dt, m.IBS.Converged(), nil
	case KindODE:
		taken, status := m.ODE.Step(h)
		return taken, status != ode.Progressed, nil
	case KindSDE:
		taken, status := m.SDE.Step(h)
		return taken, status != ode.Progressed, nil
	case KindPDE:
		if err := m.PDE.Step(h, 0, m.PDE.Geometry.Size); err != nil {
			return 0, true, nil // step-collapse is PDE's convergence signal
		}
		return h, false, nil
	default:
		return 0, false, fmt.Errorf("model: unknown kind %v", m.Kind)
	}
}

// Relax steps the model under Dynamics until convergence or g generations
// (engine-time units) have elapsed, whichever comes first — the
// "pre-relaxation" phase used before statistics sampling begins (spec §4.6
// "Relax(g)").
func (m *Model) Relax(g float64) error {
	savedMode, savedInterval := m.Mode, m.reportInterval
	m.Mode = Dynamics
	m.reportInterval = g
	defer func() { m.Mode, m.reportInterval = savedMode, savedInterval }()

	dt, err := m.Next()
	if err != nil {
		return err
	}
	_ = dt
	return nil
}

// Unload releases engine state so the Model can be reconfigured and
// Load-ed again from scratch (spec §4.6 lifecycle).
func (m *Model) Unload() {
	m.IBS, m.ODE, m.SDE, m.PDE = nil, nil, nil, nil
	m.loaded = false
	m.pending = NoAction
}

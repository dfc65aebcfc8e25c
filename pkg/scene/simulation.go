package scene

import (
	"context"

	"go.uber.org/multierr"

	"github.com/matzehuels/domrand/pkg/errors"
)

// Simulation tracks whether the simulator is running and refuses redundant
// start/stop requests. Those are programming errors and are reported with
// [errors.ErrCodeSimulationState] rather than ignored.
//
// Simulation is not safe for concurrent use.
type Simulation struct {
	ctl     Control
	running bool
}

// NewSimulation wraps c. running states whether the simulator was already
// started by someone else, e.g. when attaching to a live session.
func NewSimulation(c Control, running bool) *Simulation {
	return &Simulation{ctl: c, running: running}
}

// Running reports the last known run state.
func (s *Simulation) Running() bool { return s.running }

// Start starts the simulation.
func (s *Simulation) Start(ctx context.Context) error {
	if s.running {
		return errors.New(errors.ErrCodeSimulationState, "simulation is already running")
	}
	if err := s.ctl.StartSimulation(ctx); err != nil {
		return err
	}
	s.running = true
	return nil
}

// Stop stops the simulation.
func (s *Simulation) Stop(ctx context.Context) error {
	if !s.running {
		return errors.New(errors.ErrCodeSimulationState, "simulation is not running")
	}
	if err := s.ctl.StopSimulation(ctx); err != nil {
		return err
	}
	s.running = false
	return nil
}

// Step advances the simulation n times.
func (s *Simulation) Step(ctx context.Context, n int) error {
	for range n {
		if err := s.ctl.StepSimulation(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Restart stops the simulation if it is running, starts it again and then
// advances warmup steps so the scene settles before the first capture.
func (s *Simulation) Restart(ctx context.Context, warmup int) error {
	if s.running {
		if err := s.Stop(ctx); err != nil {
			return err
		}
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Step(ctx, warmup)
}

// Close stops a running simulation and closes the underlying control.
func (s *Simulation) Close(ctx context.Context) error {
	var err error
	if s.running {
		err = s.Stop(ctx)
	}
	return multierr.Combine(err, s.ctl.Close())
}

package simnode

import (
	"fmt"
)

// Component is a registrable participant component. Components
// optionally implement the capability interfaces below; the registry
// only drives the capabilities a component declares.
type Component interface {
	// Name returns the unique component identifier.
	Name() string
}

// Initializable components take part in the initialize/deinitialize
// phase.
type Initializable interface {
	Initialize() error
	Deinitialize() error
}

// Tensable components take part in the tense/relax phase between
// initialization and the run phase.
type Tensable interface {
	Tense() error
	Relax() error
}

// Startable components take part in the start/stop phase.
type Startable interface {
	Start() error
	Stop() error
}

// Pausable components react to the participant pausing.
type Pausable interface {
	Pause() error
}

// Components drives registered components through the collective
// lifecycle in registration order (reverse order for the undo
// direction). It implements ComponentRegistry for the state machine.
type Components struct {
	ordered []Component
	logger  Logger
}

// NewComponents creates an empty component registry.
func NewComponents(logger Logger) *Components {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Components{logger: logger}
}

// Register appends a component. Names must be unique.
func (c *Components) Register(component Component) error {
	if component == nil {
		return fmt.Errorf("registering nil component: %w", ErrInvalidArg)
	}
	for _, existing := range c.ordered {
		if existing.Name() == component.Name() {
			return fmt.Errorf("component %q: %w", component.Name(), ErrAlreadyRegistered)
		}
	}
	c.ordered = append(c.ordered, component)
	return nil
}

// Get returns a component by name.
func (c *Components) Get(name string) (Component, bool) {
	for _, component := range c.ordered {
		if component.Name() == name {
			return component, true
		}
	}
	return nil, false
}

// Initialize initializes components in order; a failure deinitializes
// the already-initialized ones in reverse order and surfaces the error.
func (c *Components) Initialize() error {
	for i, component := range c.ordered {
		init, ok := component.(Initializable)
		if !ok {
			continue
		}
		if err := init.Initialize(); err != nil {
			c.logger.Error("initializing component failed", "component", component.Name(), "error", err)
			c.deinitializeRange(i - 1)
			return fmt.Errorf("initializing component %q: %w", component.Name(), err)
		}
	}
	return nil
}

func (c *Components) deinitializeRange(from int) {
	for i := from; i >= 0; i-- {
		if deinit, ok := c.ordered[i].(Initializable); ok {
			if err := deinit.Deinitialize(); err != nil {
				c.logger.Error("deinitializing component failed",
					"component", c.ordered[i].Name(), "error", err)
			}
		}
	}
}

// Deinitialize deinitializes all components in reverse order,
// continuing on errors; the first error is returned.
func (c *Components) Deinitialize() error {
	var firstErr error
	for i := len(c.ordered) - 1; i >= 0; i-- {
		if deinit, ok := c.ordered[i].(Initializable); ok {
			if err := deinit.Deinitialize(); err != nil {
				c.logger.Error("deinitializing component failed",
					"component", c.ordered[i].Name(), "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// Tense arms components in order; a failure relaxes the already-tensed
// ones in reverse order and surfaces the error.
func (c *Components) Tense() error {
	for i, component := range c.ordered {
		tensable, ok := component.(Tensable)
		if !ok {
			continue
		}
		if err := tensable.Tense(); err != nil {
			c.logger.Error("tensing component failed", "component", component.Name(), "error", err)
			for j := i - 1; j >= 0; j-- {
				if relaxable, ok := c.ordered[j].(Tensable); ok {
					if relaxErr := relaxable.Relax(); relaxErr != nil {
						c.logger.Error("relaxing component failed",
							"component", c.ordered[j].Name(), "error", relaxErr)
					}
				}
			}
			return fmt.Errorf("tensing component %q: %w", component.Name(), err)
		}
	}
	return nil
}

// Relax relaxes all components in reverse order, continuing on errors.
func (c *Components) Relax() error {
	var firstErr error
	for i := len(c.ordered) - 1; i >= 0; i-- {
		if tensable, ok := c.ordered[i].(Tensable); ok {
			if err := tensable.Relax(); err != nil {
				c.logger.Error("relaxing component failed",
					"component", c.ordered[i].Name(), "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// Start starts components in order; a failure stops the already-started
// ones in reverse order and surfaces the error.
func (c *Components) Start() error {
	for i, component := range c.ordered {
		startable, ok := component.(Startable)
		if !ok {
			continue
		}
		if err := startable.Start(); err != nil {
			c.logger.Error("starting component failed", "component", component.Name(), "error", err)
			for j := i - 1; j >= 0; j-- {
				if stoppable, ok := c.ordered[j].(Startable); ok {
					if stopErr := stoppable.Stop(); stopErr != nil {
						c.logger.Error("stopping component failed",
							"component", c.ordered[j].Name(), "error", stopErr)
					}
				}
			}
			return fmt.Errorf("starting component %q: %w", component.Name(), err)
		}
	}
	return nil
}

// Stop stops all components in reverse order, continuing on errors; the
// first error is returned.
func (c *Components) Stop() error {
	var firstErr error
	for i := len(c.ordered) - 1; i >= 0; i-- {
		if startable, ok := c.ordered[i].(Startable); ok {
			if err := startable.Stop(); err != nil {
				c.logger.Error("stopping component failed",
					"component", c.ordered[i].Name(), "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// Pause pauses every pausable component in order; the first failure is
// surfaced.
func (c *Components) Pause() error {
	for _, component := range c.ordered {
		if pausable, ok := component.(Pausable); ok {
			if err := pausable.Pause(); err != nil {
				c.logger.Error("pausing component failed", "component", component.Name(), "error", err)
				return fmt.Errorf("pausing component %q: %w", component.Name(), err)
			}
		}
	}
	return nil
}

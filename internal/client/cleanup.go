package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupManager runs teardown steps once, newest first, bounded by a timeout.
type CleanupManager struct {
	mu      sync.Mutex
	steps   []cleanupStep
	timeout time.Duration
	once    sync.Once
	err     error
}

type cleanupStep struct {
	name string
	fn   func() error
}

// NewCleanupManager creates a manager; a non-positive timeout means 5s.
func NewCleanupManager(timeout time.Duration) *CleanupManager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CleanupManager{timeout: timeout}
}

// Register adds a named teardown step.
func (cm *CleanupManager) Register(name string, fn func() error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.steps = append(cm.steps, cleanupStep{name: name, fn: fn})
}

// Execute runs every step in reverse registration order. Later calls return
// the result of the first one.
func (cm *CleanupManager) Execute() error {
	cm.once.Do(func() {
		cm.err = cm.execute()
	})
	return cm.err
}

func (cm *CleanupManager) execute() error {
	cm.mu.Lock()
	steps := make([]cleanupStep, len(cm.steps))
	copy(steps, cm.steps)
	cm.mu.Unlock()

	if len(steps) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cm.timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		errs []error
	)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := len(steps) - 1; i >= 0; i-- {
			step := steps[i]
			err := runStep(step)

			mu.Lock()
			if err != nil {
				errs = append(errs, err)
			}
			mu.Unlock()

			if err != nil {
				log.Warn().Err(err).Str("step", step.name).Msg("cleanup step failed")
			} else {
				log.Debug().Str("step", step.name).Msg("cleanup step done")
			}
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Dur("timeout", cm.timeout).Msg("cleanup timed out, some resources may leak")
		mu.Lock()
		errs = append(errs, fmt.Errorf("cleanup: %w", ctx.Err()))
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}

func runStep(step cleanupStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic during cleanup: %v", step.name, r)
		}
	}()
	if err := step.fn(); err != nil {
		return fmt.Errorf("%s: %w", step.name, err)
	}
	return nil
}

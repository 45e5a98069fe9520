/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"
)

// CompositeUnit runs several units as one.
type CompositeUnit struct {
	Units []Unit
}

var (
	_ Unit              = (*CompositeUnit)(nil)
	_ MetricsRegisterer = (*CompositeUnit)(nil)
)

// NewCompositeUnit creates a CompositeUnit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units concurrently and returns when each of them has either started or failed.
// If some unit fails, all units are stopped non-gracefully and a single *CompositeUnitError
// with the start and stop errors is written to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		startErrs []error
	)
	firstFailure := make(chan struct{})
	var failOnce sync.Once
	allDone := make(chan struct{})

	for _, unit := range cu.Units {
		wg.Add(1)
		go func(unit Unit) {
			defer wg.Done()
			unitErr := make(chan error, 1)
			unit.Start(unitErr)
			select {
			case err := <-unitErr:
				mu.Lock()
				startErrs = append(startErrs, err)
				mu.Unlock()
				failOnce.Do(func() { close(firstFailure) })
			default:
			}
		}(unit)
	}
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
		mu.Lock()
		failed := len(startErrs) != 0
		mu.Unlock()
		if !failed {
			return
		}
	case <-firstFailure:
	}

	stopErr := cu.Stop(false)

	mu.Lock()
	errs := append([]error(nil), startErrs...)
	mu.Unlock()
	if stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	fatalErr <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units concurrently and returns a *CompositeUnitError if any of them failed to stop.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	for i, unit := range cu.Units {
		wg.Add(1)
		go func(i int, unit Unit) {
			defer wg.Done()
			errs[i] = unit.Stop(gracefully)
		}(i, unit)
	}
	wg.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: failed}
}

// MustRegisterMetrics registers metrics of the units implementing MetricsRegisterer.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, unit := range cu.Units {
		if mr, ok := unit.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics is the inverse of MustRegisterMetrics.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, unit := range cu.Units {
		if mr, ok := unit.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError collects errors of several units.
type CompositeUnitError struct {
	UnitErrors []error
}

func (e *CompositeUnitError) Error() string {
	msgs := make([]string, len(e.UnitErrors))
	for i, err := range e.UnitErrors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap allows matching errors of the units with errors.Is and errors.As.
func (e *CompositeUnitError) Unwrap() []error {
	return e.UnitErrors
}

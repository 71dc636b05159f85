package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ControllerResult is everything one controller contributed to a report.
type ControllerResult struct {
	Target       string
	Info         ControllerInfo
	Outcome      Outcome
	Associations []AssociationOutcome
	// Skipped explains why association did not run after a successful
	// reconciliation. A SelectionError lands here, not in Outcome.
	Skipped error
}

// FleetReport lists results in credential order.
type FleetReport struct {
	Policy  string
	Results []ControllerResult
}

// Orchestrator drives one policy across many controllers.
type Orchestrator struct {
	api     *apiClient
	gate    *serialGate
	name    string
	workers int
	// refreshMargin is how close to expiry a token may get before the
	// association phase refreshes it.
	refreshMargin time.Duration
}

func newOrchestrator(api *apiClient, gate Gate, name string, workers int) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		api:           api,
		gate:          &serialGate{gate: gate},
		name:          name,
		workers:       workers,
		refreshMargin: time.Minute,
	}
}

// Run processes every target independently. Results land in the slot of
// their input index, so the report order never depends on completion order.
func (o *Orchestrator) Run(ctx context.Context, targets []ControllerTarget, spec PolicySpec) FleetReport {
	report := FleetReport{
		Policy:  spec.Name,
		Results: make([]ControllerResult, len(targets)),
	}
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			report.Results[i] = ControllerResult{
				Target:  target.Address,
				Outcome: failed("", cancelledError(target.Address, err)),
			}
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, target ControllerTarget) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Results[i] = o.process(ctx, target, spec)
		}(i, target)
	}
	wg.Wait()
	return report
}

func (o *Orchestrator) process(ctx context.Context, target ControllerTarget, spec PolicySpec) ControllerResult {
	logger := log.WithFields(logrus.Fields{
		"controller": target.Address,
		"policy":     spec.Name,
	})
	logger.Info("Processing fabric")
	result := ControllerResult{Target: target.Address}

	s, err := authenticate(ctx, o.api, target)
	if err != nil {
		logger.WithError(err).Error("Login failed")
		result.Outcome = failed("", err)
		return result
	}
	if info, err := s.describe(ctx); err != nil {
		logger.WithError(err).Debug("Controller description unavailable")
	} else {
		result.Info = info
	}

	var groups []GroupRef
	if spec.Association != nil {
		if groups, err = listGroups(ctx, s, spec.Association); err != nil {
			logger.WithError(err).Error("Listing groups failed")
			result.Outcome = failed("", err)
			return result
		}
	}

	result.Outcome = reconcile(ctx, s, spec, o.name, o.gate)
	if !result.Outcome.Ok() || spec.Association == nil {
		return result
	}
	if len(groups) == 0 {
		logger.Warn("No groups found.")
		result.Skipped = selectionError("no " + spec.Association.Description + " found")
		return result
	}

	loc, _ := locate(spec, o.name)
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	prompt := fmt.Sprintf("[%s] Available %s:", target.Address, spec.Association.Description)
	var selected []GroupRef
	confirmed := false
	// Selection and its confirmation form one exchange with the operator.
	o.gate.hold(func(gate Gate) {
		selected = selectGroups(groups, gate.SelectGroups(prompt, names))
		if len(selected) == 0 {
			return
		}
		confirmed = gate.Confirm(fmt.Sprintf("[%s] Associate %s to %d of the %s?",
			target.Address, loc.Name, len(selected), spec.Association.Description))
	})
	if len(selected) == 0 {
		logger.Warn("No valid groups selected.")
		result.Skipped = selectionError(spec.Association.Description)
		return result
	}
	if !confirmed {
		logger.Info("Association declined.")
		result.Skipped = ErrDeclined
		return result
	}
	if s.expiresWithin(o.refreshMargin) {
		if err := s.Refresh(ctx); err != nil {
			logger.WithError(err).Warn("Token refresh failed")
		}
	}
	result.Associations = associate(ctx, s, spec.Association, loc.Name, selected)
	return result
}

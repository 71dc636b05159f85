package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
)

// Process exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitDeclined = 3
)

// errorDetail returns the raw remote detail for a failure.
func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("HTTP %d: %s", httpErr.Status, httpErr.Detail())
	}
	return err.Error()
}

// MarshalJSON : marshal AssociationOutcome
func (a AssociationOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"group":  a.Group,
		"status": a.Status,
		"error":  errorDetail(a.Err),
	})
}

// MarshalJSON : marshal ControllerResult
func (r ControllerResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"controller":   r.Target,
		"info":         r.Info,
		"outcome":      r.Outcome.Kind,
		"object":       r.Outcome.Object,
		"error":        errorDetail(r.Outcome.Err),
		"skipped":      errorDetail(r.Skipped),
		"associations": r.Associations,
	})
}

// MarshalJSON : marshal FleetReport
func (f FleetReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"policy":  f.Policy,
		"results": f.Results,
	})
}

func (r ControllerResult) detail() string {
	switch {
	case r.Outcome.Err != nil:
		return errorDetail(r.Outcome.Err)
	case r.Skipped != nil:
		return "association skipped: " + errorDetail(r.Skipped)
	}
	return r.Outcome.Object
}

// render prints the report as an aligned table. Association rows are
// indented under their controller.
func (f FleetReport) render(w io.Writer) {
	fmt.Fprintf(w, "\nPolicy %s\n", f.Policy)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTROLLER\tFABRIC\tOUTCOME\tDETAIL")
	fmt.Fprintln(tw, "----------\t------\t-------\t------")
	for _, r := range f.Results {
		fabric := r.Info.Fabric
		if fabric == "" {
			fabric = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Target, fabric, r.Outcome.Kind, r.detail())
		for _, a := range r.Associations {
			fmt.Fprintf(tw, "  %s\t\t%s\t%s\n", a.Group.Name, a.Status, errorDetail(a.Err))
		}
	}
	tw.Flush()
}

// exitCode maps every outcome in the reports to one process exit code:
// any failure wins over any decline.
func exitCode(reports []FleetReport) int {
	code := exitOK
	for _, report := range reports {
		for _, r := range report.Results {
			switch {
			case r.Outcome.Kind == Failed:
				return exitFailure
			case r.Outcome.Kind == Declined, errors.Is(r.Skipped, ErrDeclined):
				code = exitDeclined
			}
			for _, a := range r.Associations {
				if a.Status == AssociationFailed {
					return exitFailure
				}
			}
		}
	}
	return code
}

func summary(reports []FleetReport) string {
	counts := make(map[string]int)
	var order []string
	for _, report := range reports {
		for _, r := range report.Results {
			key := r.Outcome.Kind.String()
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
		}
	}
	parts := make([]string, 0, len(order))
	for _, key := range order {
		parts = append(parts, fmt.Sprintf("%d %s", counts[key], key))
	}
	return strings.Join(parts, ", ")
}

func writeReport(path string, reports []FleetReport) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

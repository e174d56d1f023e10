package scanner

import (
	"errors"
	"fmt"

	"github.com/axescan/axescan/internal/axe"
	"github.com/axescan/axescan/internal/browser"
	"github.com/axescan/axescan/internal/navigator"
)

// InvalidInputError rejects a malformed scan target before any record is
// created.
type InvalidInputError struct {
	URL    string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid scan target %q: %s", e.URL, e.Reason)
}

// QueueFullError reports that the execution queue could not accept a new
// scan. The pending record has already been failed by the time the caller
// sees this.
type QueueFullError struct {
	ScanID string
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("scan queue full, scan %s recorded as failed", e.ScanID)
}

// failureReason renders a pipeline error as the human-readable message stored
// on the failed scan record.
func failureReason(err error) string {
	var (
		sessionErr *browser.SessionError
		navErr     *navigator.NavigationError
		unavail    *axe.UnavailableError
		execErr    *axe.ExecutionError
	)
	switch {
	case errors.As(err, &sessionErr):
		return fmt.Sprintf("browser session unavailable: %v", sessionErr.Cause)
	case errors.As(err, &navErr):
		return fmt.Sprintf("navigation failed: %v", navErr.Cause)
	case errors.As(err, &unavail):
		return fmt.Sprintf("rule engine unavailable: %v", unavail.Cause)
	case errors.As(err, &execErr):
		return fmt.Sprintf("rule engine execution failed: %v", execErr.Cause)
	default:
		return err.Error()
	}
}

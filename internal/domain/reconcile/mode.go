package reconcile

import (
	"fmt"
	"strings"

	"github.com/photocatalog/backend/internal/domain/shared"
)

// Mode controls whether detected discrepancies are corrected
type Mode string

const (
	// ModeObserve detects and reports only.
	ModeObserve Mode = "observe"
	// ModeSafe applies corrections.
	ModeSafe Mode = "safe"
	// ModeFull applies corrections. Currently identical to ModeSafe.
	ModeFull Mode = "full"
)

// ErrInvalidMode is returned for an unknown mode value
var ErrInvalidMode = shared.NewDomainError("INVALID_MODE", "Mode must be one of observe, safe, full")

// ParseMode parses a mode name, case-insensitively
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeObserve, ModeSafe, ModeFull:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// AppliesCorrections reports whether the Corrector may write in this mode
func (m Mode) AppliesCorrections() bool {
	return m == ModeSafe || m == ModeFull
}

func (m Mode) String() string {
	return string(m)
}

package execution

import (
	"strings"

	"github.com/shopspring/decimal"

	"signalmirror/src/model"
)

// Outcome is the result of a workflow: either Success or Failure.
type Outcome interface {
	outcome()
}

// Success means the entry or exit order was accepted by the venue.
type Success struct {
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Protection Protection
}

// Failure is a terminal rejection, domain or venue side.
type Failure struct {
	Reason string
}

func (Success) outcome() {}
func (Failure) outcome() {}

func fail(reason string) Outcome {
	return Failure{Reason: reason}
}

// Protection summarises the stop-loss and take-profit orders of an entry.
type Protection struct {
	Status string
	Errors []string
}

// Error joins the protective order errors, empty when there are none.
func (p Protection) Error() string {
	return strings.Join(p.Errors, "; ")
}

func (p Protection) degraded() bool {
	return p.Status == model.ProtectionPartial || p.Status == model.ProtectionFailed
}

func protectionStatus(attempted, placed int) string {
	switch {
	case attempted == 0:
		return model.ProtectionNone
	case placed == attempted:
		return model.ProtectionPlaced
	case placed == 0:
		return model.ProtectionFailed
	default:
		return model.ProtectionPartial
	}
}

// truncate cuts s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

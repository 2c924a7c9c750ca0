package ports

import "context"

// Alerter surfaces conditions that need operator attention: invariant
// violations and draw payouts that failed after a winner was selected.
// The keeper never auto-corrects these; doing so risks double payment.
type Alerter interface {
	Alert(ctx context.Context, subject, detail string) error
}

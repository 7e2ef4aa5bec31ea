// Package notify detects stock transitions, persists owner notifications in
// the ingestion transaction, and delivers them once through a Sender.
package notify

import "github.com/jonesrussell/north-cloud/price-tracker/internal/domain"

// Transition is the stock change an ok report causes.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionFirstInStock
	TransitionBackInStock
)

func (t Transition) String() string {
	switch t {
	case TransitionFirstInStock:
		return string(domain.NotificationFirstInStock)
	case TransitionBackInStock:
		return string(domain.NotificationBackInStock)
	default:
		return "none"
	}
}

// Kind maps a transition to the notification kind it produces.
func (t Transition) Kind() (domain.NotificationKind, bool) {
	switch t {
	case TransitionFirstInStock:
		return domain.NotificationFirstInStock, true
	case TransitionBackInStock:
		return domain.NotificationBackInStock, true
	default:
		return "", false
	}
}

// Evaluate compares the summary taken before the report is written with the
// reported in_stock value.
func Evaluate(before domain.StockSummary, inStock bool) Transition {
	switch {
	case !inStock:
		return TransitionNone
	case !before.WasInStock:
		return TransitionFirstInStock
	case !before.RecentInStock:
		return TransitionBackInStock
	default:
		return TransitionNone
	}
}

package lifecycle

import "github.com/nammaooru/civicreport/internal/models"

// ReviewRank produces the ascending sort key used to order reports for admin
// review. Reopened reports outrank first-time reports at the same priority
// tier; closed reports (null priority) sink to the bottom. The SQL ORDER BY in
// the postgres store mirrors this function; ties are broken by created_at
// descending on the read side.
func ReviewRank(r *models.Report) int {
	if r.Priority == nil {
		return 99
	}
	reopened := r.ReopenCount > 0
	switch *r.Priority {
	case models.PriorityHigh:
		if reopened {
			return 1
		}
		return 4
	case models.PriorityMedium:
		if reopened {
			return 2
		}
		return 5
	case models.PriorityLow:
		if reopened {
			return 3
		}
		return 6
	default:
		return 7
	}
}

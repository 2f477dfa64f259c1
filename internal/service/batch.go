package service

import (
	"sort"
	"time"

	"github.com/kondateapp/backend/internal/models"
)

// DateLayout is the wire format for plan dates.
const DateLayout = "2006-01-02"

// ComputeNextCursor advances the job cursor by one batch and clamps it to
// [0, length]. Non-decreasing: repeated calls with the same inputs are
// idempotent once clamped.
func ComputeNextCursor(cursor, batchSize, length int) int {
	step := batchSize
	if step < 1 {
		step = 1
	}
	next := cursor + step
	if next < 0 {
		next = 0
	}
	if next > length {
		next = length
	}
	return next
}

// ComputeWeeksFromDays converts a range length in days to whole weeks,
// rounding up. Non-positive ranges count as one week.
func ComputeWeeksFromDays(days int) int {
	if days <= 0 {
		return 1
	}
	return (days + 6) / 7
}

// ComputeMaxFixesForRange scales the per-week fix policy to an arbitrary
// range while bounding total generation calls:
// min(issuesCount, weeks*fixesPerWeek, cap).
func ComputeMaxFixesForRange(days, issuesCount, fixesPerWeek, fixCap int) int {
	budget := ComputeWeeksFromDays(days) * fixesPerWeek
	if issuesCount < budget {
		budget = issuesCount
	}
	if budget > fixCap {
		budget = fixCap
	}
	if budget < 0 {
		budget = 0
	}
	return budget
}

// DedupSlots removes duplicate target slots, keyed date:mealType, keeping
// the first occurrence so an explicit PlannedMealID binding survives.
func DedupSlots(slots []models.TargetSlot) []models.TargetSlot {
	seen := make(map[string]struct{}, len(slots))
	out := make([]models.TargetSlot, 0, len(slots))
	for _, s := range slots {
		key := s.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// DatesInRange returns every date of [start, end] inclusive, sorted
// ascending, formatted as DateLayout.
func DatesInRange(start, end time.Time) []string {
	start = start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates
}

// SortIssuesByPriority orders review issues for the bounded fix loop:
// lower severity value first (1 is most important), then by date and slot
// for a stable order.
func SortIssuesByPriority(issues []ReviewIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Severity != issues[j].Severity {
			return issues[i].Severity < issues[j].Severity
		}
		if issues[i].Date != issues[j].Date {
			return issues[i].Date < issues[j].Date
		}
		return issues[i].MealType < issues[j].MealType
	})
}

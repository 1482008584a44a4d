// Package progress derives per-category and per-goal completion figures
// from a user's goals and steps. Everything here is pure and re-derivable
// from stored data; nothing mutates the persisted order of steps.
package progress

import (
	"fmt"
	"math"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/srkaul/goalmaster/backend/models"
)

// Uncategorized is the grouping bucket for goals with an empty or missing
// category name.
const Uncategorized = "Uncategorized"

// SortMode selects how step lists (or goal lists, for SortModeCategory) are
// ordered for display.
type SortMode string

const (
	SortModeDefault  SortMode = "default"
	SortModePriority SortMode = "priority"
	SortModeDeadline SortMode = "deadline"
	SortModeCategory SortMode = "category"
)

// CategorySummary is one row of the per-category overview.
type CategorySummary struct {
	Name            string `json:"name"`
	GoalCount       int    `json:"goal_count"`
	ProgressPercent int    `json:"progress_percent"`
	ColorTag        string `json:"color_tag"`
}

// GoalProgress pairs a goal with its steps (sorted for display) and its
// completion figures.
type GoalProgress struct {
	Goal      models.Goal   `json:"goal"`
	Steps     []models.Step `json:"steps"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Percent   float64       `json:"percent"`
}

// SummarizeByCategory groups goals by their denormalized category name and
// derives a completion percentage per group from the steps of the group's
// goals. Groups appear in insertion order of the first goal seen for them.
// A goal with no steps counts toward GoalCount but contributes nothing to
// the percentage's denominator.
func SummarizeByCategory(goals []models.Goal, steps []models.Step) []CategorySummary {
	type tally struct {
		index     int
		goalCount int
		completed int
		total     int
		colorTag  string
	}

	goalCategory := make(map[primitive.ObjectID]string, len(goals))
	tallies := make(map[string]*tally)
	var names []string

	for _, goal := range goals {
		name := goal.CategoryName
		if name == "" {
			name = Uncategorized
		}
		goalCategory[goal.ID] = name

		t, ok := tallies[name]
		if !ok {
			t = &tally{index: len(names), colorTag: goal.CategoryColor}
			tallies[name] = t
			names = append(names, name)
		}
		t.goalCount++
	}

	for _, step := range steps {
		name, ok := goalCategory[step.GoalID]
		if !ok {
			continue // orphaned step, invisible to every group
		}
		t := tallies[name]
		t.total++
		if step.Completed {
			t.completed++
		}
	}

	summaries := make([]CategorySummary, len(names))
	for _, name := range names {
		t := tallies[name]
		percent := 0
		if t.total > 0 {
			percent = int(math.Round(float64(t.completed) / float64(t.total) * 100))
		}
		summaries[t.index] = CategorySummary{
			Name:            name,
			GoalCount:       t.goalCount,
			ProgressPercent: percent,
			ColorTag:        t.colorTag,
		}
	}
	return summaries
}

// ProgressForGoal returns the completed and total step counts for one goal
// plus the raw percentage. Rounding is a presentation concern and is left
// to callers. A goal with zero steps is 0%, not NaN.
func ProgressForGoal(goal models.Goal, steps []models.Step) (completed, total int, percent float64) {
	for _, step := range steps {
		if step.GoalID != goal.ID {
			continue
		}
		total++
		if step.Completed {
			completed++
		}
	}
	if total == 0 {
		return 0, 0, 0
	}
	return completed, total, float64(completed) / float64(total) * 100
}

// PriorityRank maps an urgency label to its sort rank. Unrecognized or
// missing urgencies rank as Medium; that fallback is a design decision, not
// an oversight, so old or malformed values sort sensibly instead of last.
func PriorityRank(urgency string) int {
	switch urgency {
	case models.UrgencyHigh:
		return 3
	case models.UrgencyMedium:
		return 2
	case models.UrgencyLow:
		return 1
	default:
		return 2
	}
}

// SortSteps returns a copy of steps arranged per the given mode. The
// persisted order field is never modified. SortModeDefault (and
// SortModeCategory, which orders goals rather than steps) sorts by the
// persisted order.
func SortSteps(steps []models.Step, mode SortMode) []models.Step {
	sorted := make([]models.Step, len(steps))
	copy(sorted, steps)

	switch mode {
	case SortModePriority:
		sort.SliceStable(sorted, func(i, j int) bool {
			return PriorityRank(sorted[i].Urgency) > PriorityRank(sorted[j].Urgency)
		})
	case SortModeDeadline:
		// Lexicographic on ISO date strings; a missing deadline sorts as
		// the empty string, i.e. first.
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Deadline < sorted[j].Deadline
		})
	default:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Order < sorted[j].Order
		})
	}
	return sorted
}

// SortGoalsByCategory returns a copy of goals ordered ascending by category
// name using locale-aware comparison.
func SortGoalsByCategory(goals []models.Goal) []models.Goal {
	sorted := make([]models.Goal, len(goals))
	copy(sorted, goals)

	c := collate.New(language.English)
	sort.SliceStable(sorted, func(i, j int) bool {
		return c.CompareString(sorted[i].CategoryName, sorted[j].CategoryName) < 0
	})
	return sorted
}

// CombineGoalSteps builds the display model for the progress overview: each
// goal paired with its steps and completion figures, optionally filtered to
// one category and arranged per the sort mode.
func CombineGoalSteps(goals []models.Goal, steps []models.Step, mode SortMode, categoryFilter string) []GoalProgress {
	filtered := goals
	if categoryFilter != "" {
		filtered = nil
		for _, goal := range goals {
			if goal.CategoryName == categoryFilter {
				filtered = append(filtered, goal)
			}
		}
	}
	if mode == SortModeCategory {
		filtered = SortGoalsByCategory(filtered)
	}

	combined := make([]GoalProgress, 0, len(filtered))
	for _, goal := range filtered {
		var goalSteps []models.Step
		for _, step := range steps {
			if step.GoalID == goal.ID {
				goalSteps = append(goalSteps, step)
			}
		}
		completed, total, percent := ProgressForGoal(goal, goalSteps)
		combined = append(combined, GoalProgress{
			Goal:      goal,
			Steps:     SortSteps(goalSteps, mode),
			Completed: completed,
			Total:     total,
			Percent:   percent,
		})
	}
	return combined
}

// GoalFullyComplete evaluates the completion cascade after a step toggle.
// It merges the in-flight value of the toggled step with the stored flags
// of its siblings, so the decision never depends on a stale read of the
// step that just changed. Toggling a step to incomplete never signals, and
// a goal with no steps is never fully complete.
func GoalFullyComplete(goalID primitive.ObjectID, siblings []models.Step, toggledID primitive.ObjectID, newValue bool) bool {
	if !newValue {
		return false
	}

	seen := false
	for _, step := range siblings {
		if step.GoalID != goalID {
			continue
		}
		seen = true
		completed := step.Completed
		if step.ID == toggledID {
			completed = newValue
		}
		if !completed {
			return false
		}
	}
	return seen
}

// ShareMessage formats the one-line progress summary a user can share for a
// goal.
func ShareMessage(goal models.Goal, steps []models.Step) string {
	_, _, percent := ProgressForGoal(goal, steps)
	category := goal.CategoryName
	if category == "" {
		category = Uncategorized
	}
	return fmt.Sprintf("I'm %d%% done with my goal: %q in %s!", int(math.Round(percent)), goal.Answers.What, category)
}

// Package progress rolls task and milestone completion up into a single
// project percentage.
package progress

import (
	"math"

	"github.com/alfredjeanlab/planline/internal/model"
)

// Project returns the project progress. Milestones drive the figure when any
// non-cancelled milestone exists; otherwise tasks do.
func Project(milestones []*model.Milestone, tasks []*model.Task) int {
	for _, m := range milestones {
		if m.Status != model.MilestoneCancelled {
			return FromMilestones(milestones)
		}
	}
	return FromTasks(tasks)
}

// FromMilestones returns the weighted share of achieved milestones. When the
// total weight is zero every milestone counts equally. Cancelled milestones
// are ignored.
func FromMilestones(milestones []*model.Milestone) int {
	var count, achieved, totalWeight, achievedWeight int
	for _, m := range milestones {
		if m.Status == model.MilestoneCancelled {
			continue
		}
		w := model.ClampWeight(m.ProgressWeight)
		count++
		totalWeight += w
		if m.Status == model.MilestoneAchieved {
			achieved++
			achievedWeight += w
		}
	}
	if count == 0 {
		return 0
	}
	if totalWeight == 0 {
		return percent(float64(achieved), float64(count))
	}
	return percent(float64(achievedWeight), float64(totalWeight))
}

// FromTasks returns the task completion figure. If any task carries an
// explicit percentage the result is the mean effective percentage; otherwise
// it is the share of completed tasks. Cancelled tasks are ignored.
func FromTasks(tasks []*model.Task) int {
	var count, completed, sum int
	explicit := false
	for _, t := range tasks {
		if t.Status == model.TaskCancelled {
			continue
		}
		count++
		sum += t.EffectivePercent()
		if t.Status == model.TaskCompleted {
			completed++
		}
		if t.PercentComplete != nil {
			explicit = true
		}
	}
	if count == 0 {
		return 0
	}
	if explicit {
		return round(float64(sum) / float64(count))
	}
	return percent(float64(completed), float64(count))
}

func percent(part, whole float64) int {
	return round(100 * part / whole)
}

// round rounds half away from zero and clamps into [0,100].
func round(v float64) int {
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

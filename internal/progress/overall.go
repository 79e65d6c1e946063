package progress

// OverallPercent derives job progress from completed tasks and the active
// task's percentage:
//
//	floor(((completed + taskPercent/100) / totalTasks) * 100)
//
// evaluated in integers and clamped to [0,100]. An unknown or invalid total is
// treated as a single task.
func OverallPercent(completed, taskPercent, totalTasks int) int {
	if totalTasks < 1 {
		totalTasks = 1
	}
	completed = clamp(completed, 0, totalTasks)
	taskPercent = clamp(taskPercent, 0, 100)
	return clamp((100*completed+taskPercent)/totalTasks, 0, 100)
}

// TaskPercent derives the active task's percentage from item counts, or 0 when
// the total is not known yet.
func TaskPercent(saved, total int) int {
	if total <= 0 || saved <= 0 {
		return 0
	}
	return clamp(saved*100/total, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package model

import "fmt"

// Aggregate cache keys shared by the writers that invalidate them and the
// readers that populate them.
const (
	ProblemsSolvedRankKey = "problems_solved_rank"
	RunCountsKey          = "run_counts"
)

// RunDetailsKey caches the decoded grading details of a run.
func RunDetailsKey(runID int64) string {
	return fmt.Sprintf("run_details:%d", runID)
}

// ProblemStatsKey caches per-problem statistics.
func ProblemStatsKey(alias string) string {
	return "problem_stats:" + alias
}

package model

import "math"

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// DisplayScore is the boundary representation of a run score.
func DisplayScore(v float64) float64 {
	return Round(v, 4)
}

// DisplayContestScore is the boundary representation of a contest score.
func DisplayContestScore(v float64) float64 {
	return Round(v, 2)
}

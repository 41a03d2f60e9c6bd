package model

// RunMetadata is the resource usage reported by the grader for one execution.
type RunMetadata struct {
	Verdict  string  `json:"verdict,omitempty"`
	Time     float64 `json:"time"`
	SysTime  float64 `json:"sys_time,omitempty"`
	WallTime float64 `json:"wall_time"`
	Memory   int64   `json:"memory"`
}

// CaseDetails is the grading result of a single test case.
type CaseDetails struct {
	Name         string       `json:"name"`
	Verdict      Verdict      `json:"verdict"`
	Score        float64      `json:"score"`
	ContestScore float64      `json:"contest_score"`
	MaxScore     float64      `json:"max_score"`
	Meta         *RunMetadata `json:"meta,omitempty"`
}

// GroupDetails aggregates the cases of a scoring group.
type GroupDetails struct {
	Group        string        `json:"group"`
	Verdict      Verdict       `json:"verdict,omitempty"`
	Score        float64       `json:"score"`
	ContestScore float64       `json:"contest_score"`
	MaxScore     float64       `json:"max_score"`
	Cases        []CaseDetails `json:"cases,omitempty"`
}

// RunDetails is the decoded details.json produced by the grader.
type RunDetails struct {
	Verdict      Verdict                `json:"verdict"`
	CompileError *string                `json:"compile_error,omitempty"`
	CompileMeta  map[string]RunMetadata `json:"compile_meta,omitempty"`
	Score        float64                `json:"score"`
	ContestScore float64                `json:"contest_score"`
	MaxScore     *float64               `json:"max_score,omitempty"`
	Time         *float64               `json:"time,omitempty"`
	WallTime     *float64               `json:"wall_time,omitempty"`
	Memory       *float64               `json:"memory,omitempty"`
	JudgedBy     string                 `json:"judged_by,omitempty"`
	Groups       []GroupDetails         `json:"groups,omitempty"`
}

// SummarizeGroups replaces every group's verdict with the worst verdict among
// its cases and drops the per-case detail.
func (d *RunDetails) SummarizeGroups() {
	for i := range d.Groups {
		verdicts := make([]Verdict, 0, len(d.Groups[i].Cases))
		for _, c := range d.Groups[i].Cases {
			verdicts = append(verdicts, c.Verdict)
		}
		d.Groups[i].Verdict = WorstVerdict(verdicts...)
		d.Groups[i].Cases = nil
	}
}

// CaseFile is one entry of a problem artifact directory listing.
type CaseFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// CaseContents holds the input and expected output of one case.
type CaseContents struct {
	In  string `json:"in"`
	Out string `json:"out"`
}

package model

// Verdict is the grading outcome of a run.
type Verdict string

const (
	VerdictAccepted            Verdict = "AC"
	VerdictPartiallyAccepted   Verdict = "PA"
	VerdictWrongAnswer         Verdict = "WA"
	VerdictTimeLimitExceeded   Verdict = "TLE"
	VerdictOutputLimitExceeded Verdict = "OLE"
	VerdictMemoryLimitExceeded Verdict = "MLE"
	VerdictRuntimeError        Verdict = "RTE"
	VerdictRestrictedFunction  Verdict = "RFE"
	VerdictCompileError        Verdict = "CE"
	VerdictJudgeError          Verdict = "JE"
	VerdictValidatorError      Verdict = "VE"
	VerdictNoAccepted          Verdict = "NO-AC"
)

// verdictSeverity lists verdicts from least to most severe. Rank is derived
// from this table and nowhere else.
var verdictSeverity = [...]Verdict{
	VerdictAccepted,
	VerdictPartiallyAccepted,
	VerdictWrongAnswer,
	VerdictTimeLimitExceeded,
	VerdictOutputLimitExceeded,
	VerdictMemoryLimitExceeded,
	VerdictRuntimeError,
	VerdictRestrictedFunction,
	VerdictCompileError,
	VerdictJudgeError,
	VerdictValidatorError,
	VerdictNoAccepted,
}

var verdictRank = func() map[Verdict]int {
	m := make(map[Verdict]int, len(verdictSeverity))
	for i, v := range verdictSeverity {
		m[v] = i
	}
	return m
}()

// Verdicts returns all verdicts ordered by severity.
func Verdicts() []Verdict {
	out := make([]Verdict, len(verdictSeverity))
	copy(out, verdictSeverity[:])
	return out
}

// Rank returns the severity of v, or -1 if v is not a known verdict.
func (v Verdict) Rank() int {
	if r, ok := verdictRank[v]; ok {
		return r
	}
	return -1
}

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	return v.Rank() >= 0
}

// ParseVerdict converts s into a Verdict.
func ParseVerdict(s string) (Verdict, bool) {
	v := Verdict(s)
	return v, v.Valid()
}

// WorstVerdict returns the most severe of the given verdicts. An empty input
// yields AC. Unknown verdicts are ranked below AC and never win.
func WorstVerdict(verdicts ...Verdict) Verdict {
	worst := VerdictAccepted
	for _, v := range verdicts {
		if v.Rank() > worst.Rank() {
			worst = v
		}
	}
	return worst
}

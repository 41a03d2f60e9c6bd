package model_test

import (
	"encoding/json"
	"testing"

	"judgegate/internal/run/model"
)

func TestVerdictRankFollowsSeverity(t *testing.T) {
	all := model.Verdicts()
	for i, v := range all {
		if v.Rank() != i {
			t.Errorf("%s rank = %d, want %d", v, v.Rank(), i)
		}
	}
	if model.Verdict("XX").Rank() != -1 {
		t.Error("unknown verdict should rank -1")
	}
	if model.VerdictAccepted.Rank() >= model.VerdictWrongAnswer.Rank() {
		t.Error("AC must be less severe than WA")
	}
	if model.VerdictValidatorError.Rank() >= model.VerdictNoAccepted.Rank() {
		t.Error("VE must be less severe than NO-AC")
	}
}

func TestWorstVerdict(t *testing.T) {
	tests := []struct {
		name string
		in   []model.Verdict
		want model.Verdict
	}{
		{name: "empty", in: nil, want: model.VerdictAccepted},
		{name: "all accepted", in: []model.Verdict{"AC", "AC"}, want: model.VerdictAccepted},
		{name: "wrong answer wins", in: []model.Verdict{"AC", "WA"}, want: model.VerdictWrongAnswer},
		{name: "tle over wa", in: []model.Verdict{"WA", "TLE", "PA"}, want: model.VerdictTimeLimitExceeded},
		{name: "unknown ignored", in: []model.Verdict{"??", "PA"}, want: model.VerdictPartiallyAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := model.WorstVerdict(tt.in...); got != tt.want {
				t.Errorf("WorstVerdict() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSummarizeGroups(t *testing.T) {
	d := model.RunDetails{
		Groups: []model.GroupDetails{
			{Group: "A", Cases: []model.CaseDetails{{Name: "a1", Verdict: "AC"}, {Name: "a2", Verdict: "WA"}}},
			{Group: "B", Cases: []model.CaseDetails{{Name: "b1", Verdict: "AC"}, {Name: "b2", Verdict: "AC"}}},
		},
	}
	d.SummarizeGroups()

	if d.Groups[0].Verdict != model.VerdictWrongAnswer {
		t.Errorf("group A verdict = %s", d.Groups[0].Verdict)
	}
	if d.Groups[1].Verdict != model.VerdictAccepted {
		t.Errorf("group B verdict = %s", d.Groups[1].Verdict)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, g := range decoded["groups"].([]interface{}) {
		if _, ok := g.(map[string]interface{})["cases"]; ok {
			t.Error("per-case detail must be dropped after summarizing")
		}
	}
}

func TestRoundingKeepsStoredValue(t *testing.T) {
	stored := 0.123456
	if got := model.DisplayScore(stored); got != 0.1235 {
		t.Errorf("DisplayScore(%v) = %v, want 0.1235", stored, got)
	}
	if stored != 0.123456 {
		t.Error("stored value must not change")
	}
	if got := model.DisplayContestScore(12.5); got != 12.5 {
		t.Errorf("DisplayContestScore(12.5) = %v", got)
	}
}

func TestIntersectLanguages(t *testing.T) {
	got := model.IntersectLanguages(model.SupportedLanguages, []string{"py3", "cpp17-gcc", "brainfuck"}, nil, []string{"py3"})
	if len(got) != 1 || got[0] != "py3" {
		t.Errorf("IntersectLanguages() = %v", got)
	}
}

func TestStatusInQueue(t *testing.T) {
	for _, s := range []model.Status{model.StatusNew, model.StatusWaiting} {
		if !s.InQueue() {
			t.Errorf("%s should be in queue", s)
		}
	}
	for _, s := range []model.Status{model.StatusCompiling, model.StatusRunning, model.StatusReady} {
		if s.InQueue() {
			t.Errorf("%s should not be in queue", s)
		}
	}
}

package workflow

import (
	"testing"

	"github.com/google/uuid"
)

func TestApplyScalarOverwrites(t *testing.T) {
	s := NewState(uuid.New(), "prompt")
	draft := "first draft"
	s.Apply(Patch{Draft: &draft})
	if s.Draft != "first draft" {
		t.Fatalf("Draft = %q", s.Draft)
	}

	second := "second draft"
	s.Apply(Patch{Draft: &second})
	if s.Draft != "second draft" {
		t.Fatalf("Draft = %q, want overwritten value", s.Draft)
	}
}

func TestApplyResearchResultsUnionMerge(t *testing.T) {
	s := NewState(uuid.New(), "prompt")
	s.Apply(Patch{ResearchResults: map[string]string{"Redis": "fast cache"}})
	s.Apply(Patch{ResearchResults: map[string]string{"PostgreSQL": "relational db"}})

	if len(s.ResearchResults) != 2 {
		t.Fatalf("len(ResearchResults) = %d, want 2", len(s.ResearchResults))
	}
	if s.ResearchResults["Redis"] != "fast cache" {
		t.Error("expected Redis entry to survive the second merge")
	}

	s.Apply(Patch{ResearchResults: map[string]string{"Redis": "updated findings"}})
	if s.ResearchResults["Redis"] != "updated findings" {
		t.Errorf("Redis = %q, want overwritten", s.ResearchResults["Redis"])
	}
	if len(s.ResearchResults) != 2 {
		t.Fatalf("len(ResearchResults) = %d, want still 2 after overwrite", len(s.ResearchResults))
	}
}

func TestApplyAnalysisReplacesWholesale(t *testing.T) {
	s := NewState(uuid.New(), "prompt")
	first := Analysis{Topics: []string{"A", "B"}, TaskKind: TaskKindSummary}
	s.Apply(Patch{Analysis: &first})

	second := Analysis{Topics: []string{"B", "A"}, TaskKind: TaskKindComparison}
	s.Apply(Patch{Analysis: &second})

	if s.Analysis.TaskKind != TaskKindComparison {
		t.Errorf("TaskKind = %v, want Comparison", s.Analysis.TaskKind)
	}
	if s.Analysis.Topics[0] != "B" || s.Analysis.Topics[1] != "A" {
		t.Errorf("Topics = %v, want order preserved from the replacing Analysis", s.Analysis.Topics)
	}
}

func TestApplyEmptyPatchIsNoop(t *testing.T) {
	s := NewState(uuid.New(), "prompt")
	s.Draft = "untouched"
	s.Apply(Patch{})
	if s.Draft != "untouched" {
		t.Errorf("Draft = %q, want unchanged by empty patch", s.Draft)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := NewState(uuid.New(), "prompt")
	s.ResearchResults["Redis"] = "cache findings"
	cp := &Checkpoint{State: s, NextStage: StageApproval}

	blob, err := cp.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	decoded, err := Deserialize(blob)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if decoded.NextStage != StageApproval {
		t.Errorf("NextStage = %v, want %v", decoded.NextStage, StageApproval)
	}
	if decoded.State.ResearchResults["Redis"] != "cache findings" {
		t.Error("expected ResearchResults to survive the round trip")
	}
	if decoded.State.TaskID != s.TaskID {
		t.Error("expected TaskID to survive the round trip")
	}
}

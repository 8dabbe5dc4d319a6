package olympiad

import (
	"testing"
	"time"
)

func TestRank(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   []Standing
		want []int64
	}{
		{
			name: "score descending",
			in: []Standing{
				{ResultID: 1, Score: 90, CompletedAt: t0},
				{ResultID: 2, Score: 70, CompletedAt: t0},
				{ResultID: 3, Score: 70, CompletedAt: t0},
				{ResultID: 4, Score: 50, CompletedAt: t0},
			},
			want: []int64{1, 2, 3, 4},
		},
		{
			name: "earlier completion wins a tie",
			in: []Standing{
				{ResultID: 1, Score: 70, CompletedAt: t0.Add(time.Minute)},
				{ResultID: 2, Score: 70, CompletedAt: t0},
			},
			want: []int64{2, 1},
		},
		{
			name: "lower result id breaks an exact tie",
			in: []Standing{
				{ResultID: 9, Score: 70, CompletedAt: t0},
				{ResultID: 3, Score: 70, CompletedAt: t0},
			},
			want: []int64{3, 9},
		},
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rank(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, st := range got {
				if st.ResultID != tt.want[i] {
					t.Fatalf("position %d = result %d, want %d", i, st.ResultID, tt.want[i])
				}
				if st.Place == nil || *st.Place != i+1 {
					t.Fatalf("position %d has place %v", i, st.Place)
				}
			}
		})
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	in := []Standing{{ResultID: 1, Score: 10}, {ResultID: 2, Score: 20}}
	_ = Rank(in)
	if in[0].ResultID != 1 || in[0].Place != nil {
		t.Fatalf("input mutated: %+v", in)
	}
}

func TestQuestionCap(t *testing.T) {
	tests := []struct {
		perParticipant int
		bank           int
		want           int
	}{
		{0, 10, 0},
		{5, 10, 5},
		{10, 10, 0},
		{12, 10, 0},
	}
	for _, tt := range tests {
		c := Competition{QuestionsPerParticipant: tt.perParticipant}
		if got := c.QuestionCap(tt.bank); got != tt.want {
			t.Fatalf("QuestionCap(%d) with cap %d = %d, want %d", tt.bank, tt.perParticipant, got, tt.want)
		}
	}
}

func TestAcceptsAttempts(t *testing.T) {
	if err := (Competition{}).AcceptsAttempts(); err != ErrNotPublished {
		t.Fatalf("draft: got %v", err)
	}
	if err := (Competition{IsPublished: true}).AcceptsAttempts(); err != nil {
		t.Fatalf("published: got %v", err)
	}
	if err := (Competition{IsPublished: true, IsCompleted: true}).AcceptsAttempts(); err != ErrAlreadyCompleted {
		t.Fatalf("completed: got %v", err)
	}
}

package match

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/matchd/internal/domain"
)

func TestNew_ClampsScore(t *testing.T) {
	cases := []struct {
		name  string
		score int
		want  int
	}{
		{"above max", 112, 100},
		{"below min", -5, 0},
		{"in range", 73, 73},
		{"exact max", 100, 100},
		{"exact min", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New("c1", "j1", 0.8, tc.score, nil, time.Now())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Score != tc.want {
				t.Errorf("score = %d, want %d", m.Score, tc.want)
			}
		})
	}
}

func TestNew_RejectsNonFiniteSimilarity(t *testing.T) {
	for _, sim := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := New("c1", "j1", sim, 50, nil, time.Now())
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("similarity %f: expected ErrValidation, got %v", sim, err)
		}
	}
}

func TestReasonString_Rendering(t *testing.T) {
	cases := []struct {
		name   string
		reason Reason
		want   string
	}{
		{
			"missing must-haves",
			Reason{Kind: KindMissingMustHaves, Count: 2, Points: -6},
			"Missing 2 must-have skill(s) (-6 points)",
		},
		{
			"must-haves covered",
			Reason{Kind: KindMustHavesCovered},
			"All must-have skills covered",
		},
		{
			"nice-to-have bonus",
			Reason{Kind: KindNiceToHaveBonus, Count: 3, Points: 6},
			"Matched 3 nice-to-have skill(s) (+6 points)",
		},
		{
			"no experience",
			Reason{Kind: KindNoExperience, Points: -15},
			"No work experience listed (-15 points)",
		},
		{
			"semantic",
			Reason{Kind: KindSemanticSimilarity, Similarity: 0.8, Points: 12},
			"Semantic similarity 80% (+12 points)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.reason.String(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderReasons_PreservesOrder(t *testing.T) {
	reasons := []Reason{
		{Kind: KindMustHavesCovered},
		{Kind: KindNoExperience, Points: -15},
		{Kind: KindSemanticSimilarity, Similarity: 0.75, Points: 11},
	}
	rendered := RenderReasons(reasons)
	if len(rendered) != 3 {
		t.Fatalf("expected 3 rendered reasons, got %d", len(rendered))
	}
	if rendered[0] != "All must-have skills covered" {
		t.Errorf("first reason out of order: %q", rendered[0])
	}
	if !strings.Contains(rendered[2], "Semantic similarity") {
		t.Errorf("last reason out of order: %q", rendered[2])
	}
}

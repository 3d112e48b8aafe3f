package grading

import (
	"testing"

	"github.com/matiasvillaverde/trust-core/internal/broker"
	"github.com/matiasvillaverde/trust-core/internal/money"
	"github.com/matiasvillaverde/trust-core/internal/trade"
)

func TestScoreToGrade(t *testing.T) {
	tests := []struct {
		score int
		want  Grade
	}{
		{100, GradeA}, {90, GradeA}, {89, GradeB}, {80, GradeB},
		{79, GradeC}, {70, GradeC}, {69, GradeD}, {60, GradeD}, {59, GradeF}, {0, GradeF},
	}
	for _, tt := range tests {
		if got := ScoreToGrade(tt.score); got != tt.want {
			t.Errorf("ScoreToGrade(%d)=%s, expected %s", tt.score, got, tt.want)
		}
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("DefaultWeights should validate, got %v", err)
	}
	bad := Weights{Process: 500, Risk: 500, Execution: 100, Documentation: 0}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected an error for weights summing to 1100")
	}
}

func strPtr(s string) *string { return &s }

func TestScoreDocumentationFullyFilled(t *testing.T) {
	tr := trade.Trade{
		Thesis:     strPtr("breakout above resistance"),
		Context:    strPtr("volume confirmed"),
		Sector:     strPtr("tech"),
		AssetClass: strPtr("equity"),
	}
	score, recs := scoreDocumentation(tr)
	if score != 100 {
		t.Fatalf("score=%d, expected 100", score)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no recommendations, got %v", recs)
	}
}

func TestScoreDocumentationEmpty(t *testing.T) {
	score, recs := scoreDocumentation(trade.Trade{})
	if score != 0 {
		t.Fatalf("score=%d, expected 0", score)
	}
	if len(recs) != 4 {
		t.Fatalf("expected 4 recommendations, got %d: %v", len(recs), recs)
	}
}

func TestScoreDocumentationBlankStringCountsAsEmpty(t *testing.T) {
	tr := trade.Trade{Thesis: strPtr("   ")}
	score, recs := scoreDocumentation(tr)
	if score != 0 {
		t.Fatalf("whitespace-only thesis should not count as filled in, score=%d", score)
	}
	if len(recs) != 4 {
		t.Fatalf("expected 4 recommendations, got %d", len(recs))
	}
}

func bar(high, low, close, volume string) broker.MarketBar {
	return broker.MarketBar{
		High:   money.MustParse(high),
		Low:    money.MustParse(low),
		Close:  money.MustParse(close),
		Volume: money.MustParse(volume),
	}
}

func TestAdv20RequiresTwentyBars(t *testing.T) {
	bars := make([]broker.MarketBar, 19)
	for i := range bars {
		bars[i] = bar("10", "9", "9.5", "1000")
	}
	if got := adv20FromBars(bars); got != nil {
		t.Fatalf("expected nil with fewer than 20 bars, got %v", *got)
	}

	bars = append(bars, bar("10", "9", "9.5", "1000"))
	got := adv20FromBars(bars)
	if got == nil || *got != 1000 {
		t.Fatalf("expected adv20=1000, got %v", got)
	}
}

func TestAtr14RequiresFifteenBars(t *testing.T) {
	bars := make([]broker.MarketBar, 14)
	for i := range bars {
		bars[i] = bar("10", "9", "9.5", "1000")
	}
	if got := atr14FromBars(bars); got != nil {
		t.Fatalf("expected nil with fewer than 15 bars, got %v", *got)
	}

	bars = append(bars, bar("10", "9", "9.5", "1000"))
	got := atr14FromBars(bars)
	if got == nil {
		t.Fatal("expected a non-nil ATR with 15 bars")
	}
	if *got != 1 {
		t.Fatalf("atr=%v, expected 1 (high-low range is constant at 1)", *got)
	}
}

func TestMfeMaeBpsLong(t *testing.T) {
	bars := []broker.MarketBar{
		bar("105", "95", "100", "1000"),
		bar("110", "90", "100", "1000"),
	}
	mfe, mae := mfeMaeBps(trade.Long, money.MustParse("100"), bars)
	if mfe == nil || *mfe != 1000 {
		t.Fatalf("mfe=%v, expected 1000 bps (10 favorable on 100 entry)", mfe)
	}
	if mae == nil || *mae != 1000 {
		t.Fatalf("mae=%v, expected 1000 bps (10 adverse on 100 entry)", mae)
	}
}

func TestMfeMaeBpsShort(t *testing.T) {
	bars := []broker.MarketBar{
		bar("110", "90", "100", "1000"),
	}
	mfe, mae := mfeMaeBps(trade.Short, money.MustParse("100"), bars)
	if mfe == nil || *mfe != 1000 {
		t.Fatalf("mfe=%v, expected 1000 bps (price dropped to 90, favorable for a short)", mfe)
	}
	if mae == nil || *mae != 1000 {
		t.Fatalf("mae=%v, expected 1000 bps (price rose to 110, adverse for a short)", mae)
	}
}

func TestMfeMaeBpsNoBars(t *testing.T) {
	mfe, mae := mfeMaeBps(trade.Long, money.MustParse("100"), nil)
	if mfe != nil || mae != nil {
		t.Fatal("expected nil/nil with no bars")
	}
}

package domain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name         string
		activity     AddressActivity
		wantScore    string
		wantGrade    Grade
		wantActivity string
		wantCapital  string
		wantRecency  string
	}{
		{
			name:         "empty_address_scores_zero",
			activity:     AddressActivity{TxCount: 0, BalanceWei: big.NewInt(0)},
			wantScore:    "0",
			wantGrade:    GradeD,
			wantActivity: "0",
			wantCapital:  "0",
			wantRecency:  "0",
		},
		{
			name: "whale_recently_active_grades_a",
			activity: AddressActivity{
				TxCount:       400, // sqrt=20 -> 900 capped at 450
				BalanceWei:    eth(150),
				LastSeenBlock: 990,
				CurrentHeight: 1000,
			},
			wantScore:    "1000",
			wantGrade:    GradeA,
			wantActivity: "450",
			wantCapital:  "400",
			wantRecency:  "150",
		},
		{
			name: "moderate_user_grades_b",
			activity: AddressActivity{
				TxCount:       25, // sqrt=5 -> 225
				BalanceWei:    eth(2),
				LastSeenBlock: 500,
				CurrentHeight: 1200, // 700 blocks ago -> 100
			},
			wantScore:    "565",
			wantGrade:    GradeB,
			wantActivity: "225",
			wantCapital:  "240",
			wantRecency:  "100",
		},
		{
			name: "dormant_small_holder_grades_d",
			activity: AddressActivity{
				TxCount:       4,                                 // sqrt=2 -> 90
				BalanceWei:    big.NewInt(5_000_000_000_000_000), // 0.005 ETH
				LastSeenBlock: 0,
				CurrentHeight: 1000,
			},
			wantScore:    "170",
			wantGrade:    GradeD,
			wantActivity: "90",
			wantCapital:  "80",
			wantRecency:  "0",
		},
		{
			name: "nil_balance_does_not_panic",
			activity: AddressActivity{
				TxCount:    9, // sqrt=3 -> 135
				BalanceWei: nil,
			},
			wantScore:    "135",
			wantGrade:    GradeD,
			wantActivity: "135",
			wantCapital:  "0",
			wantRecency:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeScore(tt.activity)

			if want := decimal.RequireFromString(tt.wantScore); !got.Score.Equal(want) {
				t.Errorf("score: expected %s, got %s", want, got.Score)
			}
			if got.Grade != tt.wantGrade {
				t.Errorf("grade: expected %s, got %s", tt.wantGrade, got.Grade)
			}
			if want := decimal.RequireFromString(tt.wantActivity); !got.Components.Activity.Equal(want) {
				t.Errorf("activity: expected %s, got %s", want, got.Components.Activity)
			}
			if want := decimal.RequireFromString(tt.wantCapital); !got.Components.Capital.Equal(want) {
				t.Errorf("capital: expected %s, got %s", want, got.Components.Capital)
			}
			if want := decimal.RequireFromString(tt.wantRecency); !got.Components.Recency.Equal(want) {
				t.Errorf("recency: expected %s, got %s", want, got.Components.Recency)
			}
		})
	}
}

func TestComputeScoreNeverExceedsBounds(t *testing.T) {
	got := ComputeScore(AddressActivity{
		TxCount:       1_000_000,
		BalanceWei:    eth(1_000_000),
		LastSeenBlock: 1000,
		CurrentHeight: 1000,
	})
	if got.Score.GreaterThan(decimal.NewFromInt(1000)) {
		t.Fatalf("score above 1000: %s", got.Score)
	}
}

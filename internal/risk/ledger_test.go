package risk

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"RiskEngine/internal/payment"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testProfile() *MerchantRiskProfile {
	return &MerchantRiskProfile{
		MerchantID:            "m1",
		DailyLimit:            dec("10000"),
		MonthlyLimit:          dec("250000"),
		TransactionCountLimit: 100,
		MaxSingleTransaction:  dec("2500"),
		RiskTolerance:         ToleranceMedium,
		Active:                true,
	}
}

func newTestLedger(profiles ...*MerchantRiskProfile) (*Ledger, *MemoryPositionStore, *MemoryAlertStore) {
	positions := NewMemoryPositionStore()
	alerts := NewMemoryAlertStore()
	l := NewLedger(NewMemoryProfileStore(profiles...), positions, alerts, nil, nil, zerolog.Nop())
	return l, positions, alerts
}

func settle(l *Ledger, merchant, amount string, status payment.Status) {
	l.UpdatePosition(context.Background(), &payment.Transaction{
		TransactionID: "t-" + amount,
		MerchantID:    merchant,
		Amount:        dec(amount),
		Status:        status,
	})
}

func TestAssessApprovedWithinLimits(t *testing.T) {
	l, _, alerts := newTestLedger(testProfile())

	got := l.AssessTransactionRisk(context.Background(), payment.Request{
		MerchantID: "m1", CardFingerprint: "c1", Amount: dec("1000"),
	})

	if !got.Approved {
		t.Fatalf("Approved = false, want true (reason %q)", got.Reason)
	}
	if want := dec("10"); !got.ExposurePercent.Equal(want) {
		t.Errorf("ExposurePercent = %s, want %s", got.ExposurePercent, want)
	}
	if len(alerts.All()) != 0 {
		t.Errorf("alerts created = %d, want 0", len(alerts.All()))
	}
}

func TestAssessSingleTransactionTooLarge(t *testing.T) {
	l, _, alerts := newTestLedger(testProfile())

	got := l.AssessTransactionRisk(context.Background(), payment.Request{
		MerchantID: "m1", CardFingerprint: "c1", Amount: dec("2500.01"),
	})

	if got.Approved {
		t.Fatal("Approved = true, want false")
	}

	all := alerts.All()
	if len(all) != 1 {
		t.Fatalf("alerts created = %d, want 1", len(all))
	}
	if all[0].Type != AlertSingleTransactionLarge || all[0].Level != LevelCritical {
		t.Errorf("alert = %s/%s, want %s/%s",
			all[0].Type, all[0].Level, AlertSingleTransactionLarge, LevelCritical)
	}
}

func TestAssessDailyLimitExceeded(t *testing.T) {
	l, _, alerts := newTestLedger(testProfile())

	// 8500 of the 10000 daily limit already settled.
	settle(l, "m1", "2000", payment.StatusApproved)
	settle(l, "m1", "2500", payment.StatusApproved)
	settle(l, "m1", "2000", payment.StatusApproved)
	settle(l, "m1", "2000", payment.StatusApproved)

	got := l.AssessTransactionRisk(context.Background(), payment.Request{
		MerchantID: "m1", CardFingerprint: "c1", Amount: dec("2000"),
	})

	if got.Approved {
		t.Fatal("Approved = true, want false")
	}

	var found bool
	for _, a := range alerts.All() {
		if a.Type == AlertDailyLimitExceeded && a.Level == LevelCritical {
			found = true
		}
	}
	if !found {
		t.Error("no DAILY_LIMIT_EXCEEDED critical alert created")
	}
}

func TestAssessApproachingDailyLimit(t *testing.T) {
	l, _, alerts := newTestLedger(testProfile())

	settle(l, "m1", "2500", payment.StatusApproved)
	settle(l, "m1", "2500", payment.StatusApproved)
	settle(l, "m1", "2000", payment.StatusApproved)
	settle(l, "m1", "1500", payment.StatusApproved)

	// Projected 9500 of 10000: above 80%, still under the limit.
	got := l.AssessTransactionRisk(context.Background(), payment.Request{
		MerchantID: "m1", CardFingerprint: "c1", Amount: dec("1000"),
	})

	if !got.Approved {
		t.Fatalf("Approved = false, want true (reason %q)", got.Reason)
	}
	if want := dec("95"); !got.ExposurePercent.Equal(want) {
		t.Errorf("ExposurePercent = %s, want %s", got.ExposurePercent, want)
	}

	all := alerts.All()
	if len(all) != 1 {
		t.Fatalf("alerts created = %d, want 1", len(all))
	}
	if all[0].Type != AlertDailyLimitApproached || all[0].Level != LevelWarning {
		t.Errorf("alert = %s/%s, want %s/%s",
			all[0].Type, all[0].Level, AlertDailyLimitApproached, LevelWarning)
	}
}

func TestAssessTransactionCountLimit(t *testing.T) {
	profile := testProfile()
	profile.TransactionCountLimit = 3
	l, _, alerts := newTestLedger(profile)

	settle(l, "m1", "10", payment.StatusApproved)
	settle(l, "m1", "10", payment.StatusDeclined)
	settle(l, "m1", "10", payment.StatusApproved)

	got := l.AssessTransactionRisk(context.Background(), payment.Request{
		MerchantID: "m1", CardFingerprint: "c1", Amount: dec("10"),
	})

	if got.Approved {
		t.Fatal("Approved = true, want false")
	}
	if got.Reason != "Daily transaction count limit reached" {
		t.Errorf("Reason = %q", got.Reason)
	}

	all := alerts.All()
	if len(all) != 1 || all[0].Type != AlertTransactionCountHigh {
		t.Errorf("alerts = %v, want one TRANSACTION_COUNT_HIGH", all)
	}
}

func TestAssessUnknownMerchant(t *testing.T) {
	l, _, _ := newTestLedger() // no profiles

	got := l.AssessTransactionRisk(context.Background(), payment.Request{
		MerchantID: "ghost", CardFingerprint: "c1", Amount: dec("5000"),
	})
	if !got.Approved {
		t.Errorf("5000 for unknown merchant: Approved = false, want true")
	}
	if !got.ExposurePercent.Equal(dec("10")) {
		t.Errorf("ExposurePercent = %s, want 10", got.ExposurePercent)
	}

	got = l.AssessTransactionRisk(context.Background(), payment.Request{
		MerchantID: "ghost", CardFingerprint: "c1", Amount: dec("5000.01"),
	})
	if got.Approved {
		t.Error("5000.01 for unknown merchant: Approved = true, want false")
	}
}

// failingProfileStore simulates a down profile store.
type failingProfileStore struct{}

func (failingProfileStore) FindByMerchantID(context.Context, string) (*MerchantRiskProfile, error) {
	return nil, errors.New("connection refused")
}

func TestAssessProfileStoreDownFallsBackToDefaults(t *testing.T) {
	l := NewLedger(failingProfileStore{}, NewMemoryPositionStore(), NewMemoryAlertStore(), nil, nil, zerolog.Nop())

	var degraded []string
	l.OnStoreError = func(store string) { degraded = append(degraded, store) }

	got := l.AssessTransactionRisk(context.Background(), payment.Request{
		MerchantID: "m1", CardFingerprint: "c1", Amount: dec("100"),
	})
	if !got.Approved {
		t.Errorf("Approved = false, want true under default policy")
	}
	if len(degraded) != 1 || degraded[0] != "profiles" {
		t.Errorf("degraded stores = %v, want [profiles]", degraded)
	}
}

func TestUpdatePositionAccumulates(t *testing.T) {
	l, positions, _ := newTestLedger(testProfile())
	ctx := context.Background()

	settle(l, "m1", "1000", payment.StatusApproved)
	settle(l, "m1", "500", payment.StatusDeclined)
	settle(l, "m1", "2000", payment.StatusApproved)

	pos, err := positions.Current(ctx, "m1", l.Today())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}

	if !pos.TotalVolume.Equal(dec("3500")) {
		t.Errorf("TotalVolume = %s, want 3500", pos.TotalVolume)
	}
	if pos.TransactionCount != 3 {
		t.Errorf("TransactionCount = %d, want 3", pos.TransactionCount)
	}
	if !pos.ApprovedVolume.Equal(dec("3000")) || pos.ApprovedCount != 2 {
		t.Errorf("approved = (%s, %d), want (3000, 2)", pos.ApprovedVolume, pos.ApprovedCount)
	}
	if !pos.DeclinedVolume.Equal(dec("500")) || pos.DeclinedCount != 1 {
		t.Errorf("declined = (%s, %d), want (500, 1)", pos.DeclinedVolume, pos.DeclinedCount)
	}
	if !pos.MaxSingleTransaction.Equal(dec("2000")) {
		t.Errorf("MaxSingleTransaction = %s, want 2000", pos.MaxSingleTransaction)
	}
	// 3500 of the 10000 daily limit.
	if !pos.RiskExposurePercent.Equal(dec("35")) {
		t.Errorf("RiskExposurePercent = %s, want 35", pos.RiskExposurePercent)
	}
}

func TestPositionInvariantsUnderConcurrency(t *testing.T) {
	l, positions, _ := newTestLedger(testProfile())
	ctx := context.Background()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				status := payment.StatusApproved
				if r.Intn(2) == 0 {
					status = payment.StatusDeclined
				}
				l.UpdatePosition(ctx, &payment.Transaction{
					TransactionID: "t",
					MerchantID:    "m1",
					Amount:        decimal.NewFromInt(int64(1 + r.Intn(100))),
					Status:        status,
				})
			}
		}(int64(w))
	}
	wg.Wait()

	pos, err := positions.Current(ctx, "m1", l.Today())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}

	if pos.TransactionCount != workers*perWorker {
		t.Errorf("TransactionCount = %d, want %d", pos.TransactionCount, workers*perWorker)
	}
	if pos.TransactionCount != pos.ApprovedCount+pos.DeclinedCount {
		t.Errorf("count invariant broken: %d != %d + %d",
			pos.TransactionCount, pos.ApprovedCount, pos.DeclinedCount)
	}
	if !pos.TotalVolume.Equal(pos.ApprovedVolume.Add(pos.DeclinedVolume)) {
		t.Errorf("volume invariant broken: %s != %s + %s",
			pos.TotalVolume, pos.ApprovedVolume, pos.DeclinedVolume)
	}
}

func TestGetPortfolioSummary(t *testing.T) {
	l, _, _ := newTestLedger(testProfile())
	ctx := context.Background()

	settle(l, "m1", "1000", payment.StatusApproved)
	settle(l, "m1", "1000", payment.StatusDeclined)
	settle(l, "m2", "3000", payment.StatusApproved)

	got, err := l.GetPortfolioSummary(ctx)
	if err != nil {
		t.Fatalf("GetPortfolioSummary: %v", err)
	}

	if !got.TotalVolume.Equal(dec("5000")) {
		t.Errorf("TotalVolume = %s, want 5000", got.TotalVolume)
	}
	if got.TotalTransactions != 3 {
		t.Errorf("TotalTransactions = %d, want 3", got.TotalTransactions)
	}
	if got.MerchantCount != 2 {
		t.Errorf("MerchantCount = %d, want 2", got.MerchantCount)
	}
	if !got.ApprovalRate.Equal(dec("0.8")) {
		t.Errorf("ApprovalRate = %s, want 0.8", got.ApprovalRate)
	}
}

func TestGetPortfolioSummaryEmpty(t *testing.T) {
	l, _, _ := newTestLedger()

	got, err := l.GetPortfolioSummary(context.Background())
	if err != nil {
		t.Fatalf("GetPortfolioSummary: %v", err)
	}
	if got.MerchantCount != 0 || !got.TotalVolume.IsZero() || !got.ApprovalRate.IsZero() {
		t.Errorf("empty summary = %+v", got)
	}
}

func TestUtcDate(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	// 23:30 local on March 1 is 07:30 UTC on March 2.
	in := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	got := utcDate(in)
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("utcDate = %v, want %v", got, want)
	}
}

package policy

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"orchestrator/internal/models"
	"orchestrator/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "console", Output: "stderr"})
}

func ladder() []models.TakeProfitTier {
	return []models.TakeProfitTier{
		{ProfitPercent: 5, ExitPercent: 50},
		{ProfitPercent: 10, ExitPercent: 100},
	}
}

func TestCheckTakeProfitLevels(t *testing.T) {
	tests := []struct {
		name      string
		profit    float64
		triggered []float64
		wantTier  float64 // 0 = ничего не сработало
	}{
		{"below all tiers", 3.0, nil, 0},
		{"first tier reached", 6.0, nil, 5},
		{"exactly at threshold", 5.0, nil, 5},
		{"first already triggered", 6.0, []float64{5}, 0},
		{"jump through both tiers picks highest", 12.0, nil, 10},
		{"highest after first triggered", 12.0, []float64{5}, 10},
		{"all triggered", 12.0, []float64{5, 10}, 0},
		{"negative profit", -2.0, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := models.OpenPosition{Pair: "ETH/USDT", TradeID: 1, EntryPrice: 100, ProfitPercent: tt.profit}
			state := &models.PositionState{TriggeredTiers: tt.triggered}

			got := CheckTakeProfitLevels(pos, ladder(), state)
			if tt.wantTier == 0 {
				if got != nil {
					t.Errorf("CheckTakeProfitLevels() = %+v, want nil", got)
				}
				return
			}
			if got == nil || got.ProfitPercent != tt.wantTier {
				t.Errorf("CheckTakeProfitLevels() = %+v, want tier %.0f", got, tt.wantTier)
			}
		})
	}
}

// Вход по 100, уровни 5%/50 и 10%/100, цена 106: срабатывает уровень 5%
// один раз; повторный проход по тому же состоянию ничего не даёт
func TestTakeProfitTriggersOnce(t *testing.T) {
	pos := models.OpenPosition{
		Pair: "ETH/USDT", TradeID: 7,
		EntryPrice: 100, CurrentPrice: 106, ProfitPercent: 6,
	}
	state := &models.PositionState{InstanceID: "bot-1", TradeID: 7}

	tier := CheckTakeProfitLevels(pos, ladder(), state)
	if tier == nil || tier.ProfitPercent != 5 {
		t.Fatalf("first pass = %+v, want 5%% tier", tier)
	}

	action := TakeProfitAction("bot-1", pos, *tier)
	if action.Kind != models.ActionPartialTakeProfit {
		t.Errorf("action.Kind = %s, want partial_take_profit (exit 50)", action.Kind)
	}
	if action.ExitPercent != 50 {
		t.Errorf("action.ExitPercent = %v, want 50", action.ExitPercent)
	}

	state.TriggeredTiers = append(state.TriggeredTiers, tier.ProfitPercent)

	if again := CheckTakeProfitLevels(pos, ladder(), state); again != nil {
		t.Errorf("second pass = %+v, want nil (tier must fire once)", again)
	}
}

func TestTakeProfitActionFullExit(t *testing.T) {
	pos := models.OpenPosition{Pair: "ETH/USDT", TradeID: 7, CurrentPrice: 111, ProfitPercent: 11}
	action := TakeProfitAction("bot-1", pos, models.TakeProfitTier{ProfitPercent: 10, ExitPercent: 100})

	if action.Kind != models.ActionTakeProfit {
		t.Errorf("action.Kind = %s, want take_profit (exit 100 = full)", action.Kind)
	}
}

// HWM 120, отступ 3%: стоп 116.40, выход при цене не выше стопа
func TestTrailingStopExitAtDistance(t *testing.T) {
	settings := models.TrailingStopSettings{Enabled: true, ActivationPercent: 2, DistancePercent: 3}
	state := &models.PositionState{HighWaterMark: 120, TrailingActive: true}

	pos := models.OpenPosition{TradeID: 1, CurrentPrice: 116.40, ProfitPercent: 16.4}
	d := ManageTrailingStop(pos, settings, state)

	if math.Abs(d.StopPrice-116.40) > 1e-9 {
		t.Errorf("StopPrice = %v, want 116.40", d.StopPrice)
	}
	if !d.Exit {
		t.Error("Exit = false at stop price, want true")
	}
}

func TestTrailingStopHighWaterMarkMonotonic(t *testing.T) {
	settings := models.TrailingStopSettings{Enabled: true, ActivationPercent: 2, DistancePercent: 3}
	state := &models.PositionState{}

	// Рост: HWM следует за ценой, стоп активируется
	d := ManageTrailingStop(models.OpenPosition{CurrentPrice: 110, ProfitPercent: 10}, settings, state)
	if state.HighWaterMark != 110 || !state.TrailingActive {
		t.Fatalf("after rise: hwm = %v active = %v", state.HighWaterMark, state.TrailingActive)
	}
	if !d.Changed {
		t.Error("Changed = false after HWM update")
	}
	if d.Exit {
		t.Error("Exit = true right after activation at the top")
	}

	// Откат в пределах отступа: HWM не снижается, выхода нет
	d = ManageTrailingStop(models.OpenPosition{CurrentPrice: 108, ProfitPercent: 8}, settings, state)
	if state.HighWaterMark != 110 {
		t.Errorf("hwm dropped to %v on pullback", state.HighWaterMark)
	}
	if d.Exit {
		t.Error("Exit = true inside the distance")
	}

	// Падение ниже стопа 110*0.97 = 106.70: выход
	d = ManageTrailingStop(models.OpenPosition{CurrentPrice: 106, ProfitPercent: 6}, settings, state)
	if !d.Exit {
		t.Errorf("Exit = false at price 106 with stop %.2f", d.StopPrice)
	}
}

func TestTrailingStopNotActivatedBelowThreshold(t *testing.T) {
	settings := models.TrailingStopSettings{Enabled: true, ActivationPercent: 2, DistancePercent: 3}
	state := &models.PositionState{}

	d := ManageTrailingStop(models.OpenPosition{CurrentPrice: 101, ProfitPercent: 1}, settings, state)
	if state.TrailingActive {
		t.Error("trailing activated below activation threshold")
	}
	if d.Exit || d.StopPrice != 0 {
		t.Errorf("decision = %+v, want no stop before activation", d)
	}
}

func TestTrailingStopDisabled(t *testing.T) {
	state := &models.PositionState{HighWaterMark: 120, TrailingActive: true}
	d := ManageTrailingStop(
		models.OpenPosition{CurrentPrice: 50, ProfitPercent: -50},
		models.TrailingStopSettings{Enabled: false, DistancePercent: 3},
		state,
	)
	if d.Exit || d.Changed {
		t.Errorf("disabled trailing produced decision %+v", d)
	}
}

func TestIsTradingAllowed(t *testing.T) {
	base := models.DefaultFeatureSettings()

	tests := []struct {
		name       string
		mutate     func(*models.FeatureSettings)
		in         RiskInputs
		want       bool
		wantReason string
	}{
		{
			name: "all clear",
			in:   RiskInputs{Now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), PortfolioValue: 10000, PortfolioKnown: true, RealizedPnL: 100, PnLKnown: true},
			want: true,
		},
		{
			// PnL -600 при портфеле 10000 и лимите 5%: 600 > 500
			name:       "daily loss limit breached",
			in:         RiskInputs{Now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), PortfolioValue: 10000, PortfolioKnown: true, RealizedPnL: -600, PnLKnown: true},
			want:       false,
			wantReason: "daily loss",
		},
		{
			name: "loss exactly at limit allowed",
			in:   RiskInputs{Now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), PortfolioValue: 10000, PortfolioKnown: true, RealizedPnL: -500, PnLKnown: true},
			want: true,
		},
		{
			name: "loss with unknown portfolio skipped",
			in:   RiskInputs{Now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), RealizedPnL: -600, PnLKnown: true},
			want: true,
		},
		{
			name:       "market crash",
			in:         RiskInputs{Now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), MarketCrash: true},
			want:       false,
			wantReason: "market crash",
		},
		{
			name:   "crash ignored when emergency stop disabled",
			mutate: func(s *models.FeatureSettings) { s.Risk.EmergencyStopEnabled = false },
			in:     RiskInputs{Now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), MarketCrash: true},
			want:   true,
		},
		{
			name: "outside schedule window",
			mutate: func(s *models.FeatureSettings) {
				s.Schedule = models.ScheduleSettings{Enabled: true, StartHour: 9, EndHour: 17}
			},
			in:         RiskInputs{Now: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)},
			want:       false,
			wantReason: "trading window",
		},
		{
			// Расписание проверяется первым: причина - окно, не обвал
			name: "schedule wins over crash",
			mutate: func(s *models.FeatureSettings) {
				s.Schedule = models.ScheduleSettings{Enabled: true, StartHour: 9, EndHour: 17}
			},
			in:         RiskInputs{Now: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC), MarketCrash: true},
			want:       false,
			wantReason: "trading window",
		},
		{
			name: "overnight window wraps midnight",
			mutate: func(s *models.FeatureSettings) {
				s.Schedule = models.ScheduleSettings{Enabled: true, StartHour: 22, EndHour: 6}
			},
			in:   RiskInputs{Now: time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)},
			want: true,
		},
		{
			name: "equal hours means around the clock",
			mutate: func(s *models.FeatureSettings) {
				s.Schedule = models.ScheduleSettings{Enabled: true, StartHour: 0, EndHour: 0}
			},
			in:   RiskInputs{Now: time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := base
			if tt.mutate != nil {
				tt.mutate(&settings)
			}

			got, reason := IsTradingAllowed(&settings, tt.in)
			if got != tt.want {
				t.Errorf("IsTradingAllowed() = %v (%q), want %v", got, reason, tt.want)
			}
			if !tt.want && tt.wantReason != "" && !strings.Contains(reason, tt.wantReason) {
				t.Errorf("reason = %q, want substring %q", reason, tt.wantReason)
			}
		})
	}
}

func TestSettingsLoader(t *testing.T) {
	dir := t.TempDir()
	loader := NewSettingsLoader(dir, testLogger())

	t.Run("missing file yields defaults", func(t *testing.T) {
		got, err := loader.Load("bot-1")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		want := models.DefaultFeatureSettings()
		if len(got.TakeProfitTiers) != len(want.TakeProfitTiers) || got.Risk.DailyLossLimit != want.Risk.DailyLossLimit {
			t.Errorf("Load() = %+v, want defaults", got)
		}
	})

	t.Run("valid file", func(t *testing.T) {
		writeSettings(t, dir, "bot-2", `
take_profit_tiers:
  - profit_percent: 3
    exit_percent: 25
trailing_stop:
  enabled: true
  activation_percent: 1.5
  distance_percent: 2
schedule:
  enabled: true
  start_hour: 9
  end_hour: 17
risk:
  daily_loss_limit: 0.1
  emergency_stop_enabled: false
`)
		got, err := loader.Load("bot-2")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got.TakeProfitTiers) != 1 || got.TakeProfitTiers[0].ExitPercent != 25 {
			t.Errorf("tiers = %+v", got.TakeProfitTiers)
		}
		if !got.Schedule.Enabled || got.Schedule.StartHour != 9 {
			t.Errorf("schedule = %+v", got.Schedule)
		}
		if got.Risk.DailyLossLimit != 0.1 {
			t.Errorf("daily_loss_limit = %v", got.Risk.DailyLossLimit)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		writeSettings(t, dir, "bot-3", "take_profit_tiers: [{{{")
		if _, err := loader.Load("bot-3"); !errors.Is(err, ErrMalformedSettings) {
			t.Errorf("Load() error = %v, want ErrMalformedSettings", err)
		}
	})

	t.Run("out of range values", func(t *testing.T) {
		writeSettings(t, dir, "bot-4", `
take_profit_tiers:
  - profit_percent: 5
    exit_percent: 150
`)
		if _, err := loader.Load("bot-4"); !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("Load() error = %v, want ErrInvalidSettings", err)
		}
	})
}

func writeSettings(t *testing.T, dir, instanceID, content string) {
	t.Helper()
	instDir := filepath.Join(dir, instanceID)
	if err := os.MkdirAll(instDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(instDir, "features.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

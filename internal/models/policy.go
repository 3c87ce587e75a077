package models

// TakeProfitTier - уровень лестницы take-profit
//
// ExitPercent = 100 означает полный выход; меньшие значения - частичный
type TakeProfitTier struct {
	ProfitPercent float64 `yaml:"profit_percent" json:"profit_percent"`
	ExitPercent   float64 `yaml:"exit_percent" json:"exit_percent"`
}

// TrailingStopSettings - настройки трейлинг-стопа
type TrailingStopSettings struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	ActivationPercent float64 `yaml:"activation_percent" json:"activation_percent"` // профит для активации
	DistancePercent   float64 `yaml:"distance_percent" json:"distance_percent"`     // отступ от high-water-mark
}

// ScheduleSettings - торговое окно
//
// Часы в UTC; StartHour == EndHour означает круглосуточную торговлю
type ScheduleSettings struct {
	Enabled   bool `yaml:"enabled" json:"enabled"`
	StartHour int  `yaml:"start_hour" json:"start_hour"`
	EndHour   int  `yaml:"end_hour" json:"end_hour"`
}

// RiskSettings - лимиты риск-менеджера
type RiskSettings struct {
	// Дневной лимит убытка как доля стоимости портфеля (0.05 = 5%)
	DailyLossLimit float64 `yaml:"daily_loss_limit" json:"daily_loss_limit"`

	// Реагировать ли на рыночный сигнал обвала
	EmergencyStopEnabled bool `yaml:"emergency_stop_enabled" json:"emergency_stop_enabled"`
}

// FeatureSettings - полная политика контроля инстанса
//
// Загружается из features.yaml инстанса заново каждый цикл мониторинга:
// изменение конфигурации должно вступать в силу в пределах одного интервала
type FeatureSettings struct {
	TakeProfitTiers []TakeProfitTier     `yaml:"take_profit_tiers" json:"take_profit_tiers"`
	TrailingStop    TrailingStopSettings `yaml:"trailing_stop" json:"trailing_stop"`
	Schedule        ScheduleSettings     `yaml:"schedule" json:"schedule"`
	Risk            RiskSettings         `yaml:"risk" json:"risk"`
}

// DefaultFeatureSettings возвращает политику по умолчанию
func DefaultFeatureSettings() FeatureSettings {
	return FeatureSettings{
		TakeProfitTiers: []TakeProfitTier{
			{ProfitPercent: 5, ExitPercent: 50},
			{ProfitPercent: 10, ExitPercent: 100},
		},
		TrailingStop: TrailingStopSettings{
			Enabled:           true,
			ActivationPercent: 2,
			DistancePercent:   3,
		},
		Schedule: ScheduleSettings{Enabled: false},
		Risk: RiskSettings{
			DailyLossLimit:       0.05,
			EmergencyStopEnabled: true,
		},
	}
}

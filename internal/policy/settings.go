// Package policy реализует торговые политики поверх позиций движка:
// лестницу take-profit, трейлинг-стоп и разрешение на торговлю.
package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"orchestrator/internal/models"
	"orchestrator/pkg/utils"
)

// Ошибки загрузчика настроек
var (
	ErrMalformedSettings = errors.New("malformed feature settings")
	ErrInvalidSettings   = errors.New("invalid feature settings")
)

// SettingsLoader читает пер-инстансные настройки политик с диска
//
// Файл перечитывается каждый цикл: оператор правит его на лету, и
// изменения должны применяться без рестарта. Отсутствующий файл - не
// ошибка (дефолтные настройки), повреждённый - ошибка, по которой
// инстанс пропускает цикл: торговать по полупрочитанной политике нельзя.
type SettingsLoader struct {
	dir    string
	logger *utils.Logger
}

// NewSettingsLoader создает загрузчик для каталога инстансов
func NewSettingsLoader(dir string, logger *utils.Logger) *SettingsLoader {
	return &SettingsLoader{
		dir:    dir,
		logger: logger.WithComponent("policy"),
	}
}

// SettingsPath возвращает путь к файлу настроек инстанса
func (l *SettingsLoader) SettingsPath(instanceID string) string {
	return filepath.Join(l.dir, instanceID, "features.yaml")
}

// Load читает настройки инстанса
func (l *SettingsLoader) Load(instanceID string) (*models.FeatureSettings, error) {
	path := l.SettingsPath(instanceID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			settings := models.DefaultFeatureSettings()
			return &settings, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	var settings models.FeatureSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSettings, path, err)
	}

	if err := validateSettings(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// validateSettings проверяет диапазоны значений
func validateSettings(s *models.FeatureSettings) error {
	for _, tier := range s.TakeProfitTiers {
		if tier.ProfitPercent <= 0 {
			return fmt.Errorf("%w: tier profit_percent %.2f must be positive", ErrInvalidSettings, tier.ProfitPercent)
		}
		if tier.ExitPercent <= 0 || tier.ExitPercent > 100 {
			return fmt.Errorf("%w: tier exit_percent %.2f must be in (0, 100]", ErrInvalidSettings, tier.ExitPercent)
		}
	}

	if s.TrailingStop.Enabled {
		if s.TrailingStop.ActivationPercent < 0 {
			return fmt.Errorf("%w: trailing activation_percent must be non-negative", ErrInvalidSettings)
		}
		if s.TrailingStop.DistancePercent <= 0 || s.TrailingStop.DistancePercent >= 100 {
			return fmt.Errorf("%w: trailing distance_percent must be in (0, 100)", ErrInvalidSettings)
		}
	}

	if s.Schedule.Enabled {
		if s.Schedule.StartHour < 0 || s.Schedule.StartHour > 23 ||
			s.Schedule.EndHour < 0 || s.Schedule.EndHour > 23 {
			return fmt.Errorf("%w: schedule hours must be in [0, 23]", ErrInvalidSettings)
		}
	}

	if s.Risk.DailyLossLimit < 0 || s.Risk.DailyLossLimit > 1 {
		return fmt.Errorf("%w: daily_loss_limit must be in [0, 1]", ErrInvalidSettings)
	}
	return nil
}

package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"orchestrator/internal/models"
)

// Ошибки репозитория состояния позиций
var (
	ErrPositionStateNotFound = errors.New("position state not found")
)

// PositionStateRepository - долговечное состояние контроля позиций
//
// High-water-mark трейлинг-стопа и сработавшие уровни take-profit обязаны
// переживать рестарт процесса: потеря high-water-mark сдвинула бы стоп вниз,
// а потеря сработавших уровней привела бы к повторным выходам каждый цикл.
type PositionStateRepository struct {
	db *sql.DB
}

// NewPositionStateRepository создает новый экземпляр репозитория
func NewPositionStateRepository(db *sql.DB) *PositionStateRepository {
	return &PositionStateRepository{db: db}
}

// Get возвращает состояние позиции по ключу (инстанс, трейд)
func (r *PositionStateRepository) Get(instanceID string, tradeID int64) (*models.PositionState, error) {
	query := `
		SELECT instance_id, trade_id, pair, high_water_mark, trailing_active, triggered_tiers, updated_at
		FROM position_state
		WHERE instance_id = $1 AND trade_id = $2`

	ps := &models.PositionState{}
	var tiersJSON []byte
	err := r.db.QueryRow(query, instanceID, tradeID).Scan(
		&ps.InstanceID,
		&ps.TradeID,
		&ps.Pair,
		&ps.HighWaterMark,
		&ps.TrailingActive,
		&tiersJSON,
		&ps.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionStateNotFound
		}
		return nil, err
	}

	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &ps.TriggeredTiers); err != nil {
			return nil, err
		}
	}

	return ps, nil
}

// Save сохраняет состояние позиции (upsert по ключу инстанс+трейд)
func (r *PositionStateRepository) Save(ps *models.PositionState) error {
	tiersJSON, err := json.Marshal(ps.TriggeredTiers)
	if err != nil {
		return err
	}

	ps.UpdatedAt = time.Now()

	query := `
		INSERT INTO position_state (instance_id, trade_id, pair, high_water_mark, trailing_active, triggered_tiers, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instance_id, trade_id)
		DO UPDATE SET pair = $3, high_water_mark = $4, trailing_active = $5, triggered_tiers = $6, updated_at = $7`

	_, err = r.db.Exec(query,
		ps.InstanceID,
		ps.TradeID,
		ps.Pair,
		ps.HighWaterMark,
		ps.TrailingActive,
		tiersJSON,
		ps.UpdatedAt,
	)
	return err
}

// PruneClosed удаляет состояния трейдов, которых больше нет среди открытых
// позиций движка (позиция закрыта или движок её потерял)
func (r *PositionStateRepository) PruneClosed(instanceID string, openTradeIDs []int64) error {
	if len(openTradeIDs) == 0 {
		_, err := r.db.Exec(`DELETE FROM position_state WHERE instance_id = $1`, instanceID)
		return err
	}

	query := `
		DELETE FROM position_state
		WHERE instance_id = $1 AND NOT (trade_id = ANY($2))`

	_, err := r.db.Exec(query, instanceID, pq.Array(openTradeIDs))
	return err
}

// DeleteByInstance удаляет все состояния инстанса (инстанс удалён из реестра)
func (r *PositionStateRepository) DeleteByInstance(instanceID string) error {
	_, err := r.db.Exec(`DELETE FROM position_state WHERE instance_id = $1`, instanceID)
	return err
}

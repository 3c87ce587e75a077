package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"orchestrator/internal/models"
)

// ActionLogRepository - журнал исполненных действий
//
// Append-only с обрезкой до последних N записей на инстанс: журнал нужен
// для аудита и отчётности, а не как полная история
type ActionLogRepository struct {
	db    *sql.DB
	limit int // максимум записей на инстанс
}

// NewActionLogRepository создает новый экземпляр репозитория
func NewActionLogRepository(db *sql.DB, limit int) *ActionLogRepository {
	if limit <= 0 {
		limit = 100
	}
	return &ActionLogRepository{db: db, limit: limit}
}

// Append добавляет запись и обрезает журнал инстанса до лимита
func (r *ActionLogRepository) Append(entry *models.ActionLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	insert := `
		INSERT INTO action_log (id, instance_id, kind, trade_id, pair, detail, success, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := r.db.Exec(insert,
		entry.ID,
		entry.InstanceID,
		entry.Kind,
		entry.TradeID,
		entry.Pair,
		entry.Detail,
		entry.Success,
		entry.ExecutedAt,
	); err != nil {
		return err
	}

	// Оставляем только последние limit записей этого инстанса
	trim := `
		DELETE FROM action_log
		WHERE instance_id = $1
		  AND id NOT IN (
			SELECT id FROM action_log
			WHERE instance_id = $1
			ORDER BY executed_at DESC
			LIMIT $2
		  )`

	_, err := r.db.Exec(trim, entry.InstanceID, r.limit)
	return err
}

// ListByInstance возвращает записи журнала инстанса (новые первыми)
func (r *ActionLogRepository) ListByInstance(instanceID string, limit int) ([]*models.ActionLogEntry, error) {
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}

	query := `
		SELECT id, instance_id, kind, trade_id, pair, detail, success, executed_at
		FROM action_log
		WHERE instance_id = $1
		ORDER BY executed_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ActionLogEntry
	for rows.Next() {
		e := &models.ActionLogEntry{}
		if err := rows.Scan(
			&e.ID,
			&e.InstanceID,
			&e.Kind,
			&e.TradeID,
			&e.Pair,
			&e.Detail,
			&e.Success,
			&e.ExecutedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

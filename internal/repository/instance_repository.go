package repository

import (
	"database/sql"
	"errors"

	"orchestrator/internal/models"
)

// Ошибки репозитория реестра ботов
var (
	ErrInstanceNotFound = errors.New("bot instance not found")
)

// InstanceRepository - чтение реестра ботов
//
// Таблица bot_instances принадлежит CRUD-бэкенду: создание и удаление
// инстансов происходит там. Ядро оркестратора только читает реестр при
// discovery и для расшифровки учётных данных.
type InstanceRepository struct {
	db *sql.DB
}

// NewInstanceRepository создает новый экземпляр репозитория
func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// List возвращает все зарегистрированные инстансы
func (r *InstanceRepository) List() ([]*models.BotInstance, error) {
	query := `
		SELECT instance_id, user_id, port, api_username, api_password_enc, created_at
		FROM bot_instances
		ORDER BY created_at`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*models.BotInstance
	for rows.Next() {
		inst := &models.BotInstance{}
		if err := rows.Scan(
			&inst.InstanceID,
			&inst.UserID,
			&inst.Port,
			&inst.APIUsername,
			&inst.APIPasswordEnc,
			&inst.CreatedAt,
		); err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}

	return instances, rows.Err()
}

// Get возвращает инстанс по идентификатору
func (r *InstanceRepository) Get(instanceID string) (*models.BotInstance, error) {
	query := `
		SELECT instance_id, user_id, port, api_username, api_password_enc, created_at
		FROM bot_instances
		WHERE instance_id = $1`

	inst := &models.BotInstance{}
	err := r.db.QueryRow(query, instanceID).Scan(
		&inst.InstanceID,
		&inst.UserID,
		&inst.Port,
		&inst.APIUsername,
		&inst.APIPasswordEnc,
		&inst.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	return inst, nil
}

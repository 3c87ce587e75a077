package placement

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"orchestrator/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store - файловое хранилище документа размещения
//
// Документ - единственный источник истины о том, "что должно существовать".
// Каждая мутация перезаписывает снапшот целиком: пулов десятки, не миллионы,
// поэтому инкрементальный журнал не нужен.
//
// Атомарность: запись во временный файл + rename. Частичная запись
// повредила бы инвариант взаимной согласованности pools/bot_mapping.
type Store struct {
	path string
}

// NewStore создает хранилище для указанного пути
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path возвращает путь к документу состояния
func (s *Store) Path() string {
	return s.path
}

// Load читает состояние размещения с диска
// Отсутствующий файл - не ошибка: возвращается пустое состояние
func (s *Store) Load() (*models.PlacementState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewPlacementState(), nil
		}
		return nil, fmt.Errorf("read placement state: %w", err)
	}

	state := models.NewPlacementState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse placement state: %w", err)
	}

	if state.Pools == nil {
		state.Pools = make(map[string]*models.Pool)
	}
	if state.BotMapping == nil {
		state.BotMapping = make(map[string]string)
	}

	return state, nil
}

// Save атомарно записывает состояние: temp-файл в том же каталоге + rename
func (s *Store) Save(state *models.PlacementState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal placement state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".placement-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Backup копирует текущий документ в <path>.bak.<unix-ts>
// Вызывается перед мутациями сверки; отсутствие документа - не ошибка
func (s *Store) Backup() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read state for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s.bak.%d", s.path, time.Now().Unix())
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	return backupPath, nil
}

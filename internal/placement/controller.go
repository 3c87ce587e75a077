package placement

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// PoolController - управляющая поверхность пулов (потребляется, не определяется)
//
// Каждый пул - группа процессов под внешним супервизором, который умеет
// перечислять запущенные боты и запускать/останавливать отдельный процесс.
type PoolController interface {
	// ListRunning возвращает instance_id'ы ботов, реально запущенных в пуле
	ListRunning(ctx context.Context, poolID string) ([]string, error)

	// StartBot запускает процесс бота внутри пула
	StartBot(ctx context.Context, poolID, instanceID string) error

	// StopBot останавливает процесс бота внутри пула
	StopBot(ctx context.Context, poolID, instanceID string) error
}

// HTTPPoolController - клиент HTTP API супервизора пулов
//
// Поверхность супервизора:
//
//	GET    /pools/{id}/processes                -> {"instances": [...]}
//	POST   /pools/{id}/processes                <- {"instance_id": "..."}
//	DELETE /pools/{id}/processes/{instance_id}
type HTTPPoolController struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPoolController создает контроллер для указанного супервизора
func NewHTTPPoolController(baseURL string, timeout time.Duration) *HTTPPoolController {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPoolController{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type processListResponse struct {
	Instances []string `json:"instances"`
}

// ListRunning возвращает запущенные инстансы пула
func (c *HTTPPoolController) ListRunning(ctx context.Context, poolID string) ([]string, error) {
	url := fmt.Sprintf("%s/pools/%s/processes", c.baseURL, poolID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list pool processes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list pool processes: supervisor returned %d", resp.StatusCode)
	}

	var out processListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode supervisor response: %w", err)
	}

	return out.Instances, nil
}

// StartBot запускает процесс бота в пуле
func (c *HTTPPoolController) StartBot(ctx context.Context, poolID, instanceID string) error {
	url := fmt.Sprintf("%s/pools/%s/processes", c.baseURL, poolID)

	body, err := json.Marshal(map[string]string{"instance_id": instanceID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("start bot process: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("start bot process: supervisor returned %d", resp.StatusCode)
	}

	return nil
}

// StopBot останавливает процесс бота в пуле
func (c *HTTPPoolController) StopBot(ctx context.Context, poolID, instanceID string) error {
	url := fmt.Sprintf("%s/pools/%s/processes/%s", c.baseURL, poolID, instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stop bot process: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("stop bot process: supervisor returned %d", resp.StatusCode)
	}

	return nil
}

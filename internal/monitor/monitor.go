package monitor

import (
	"context"
	"sync"
	"time"

	"orchestrator/internal/engine"
	"orchestrator/internal/models"
	"orchestrator/internal/websocket"
	"orchestrator/pkg/utils"
)

// EngineAPI - срез клиента движка, нужный контуру
// Все методы best-effort: ошибка означает "данных нет"
type EngineAPI interface {
	Status(ctx context.Context) ([]models.OpenPosition, error)
	Balance(ctx context.Context) (float64, error)
	Profit(ctx context.Context) (*engine.ProfitSummary, error)
	Ticker(ctx context.Context, pair string) (float64, error)
	ForceExit(ctx context.Context, tradeID int64) error
}

// Registry - источник зарегистрированных инстансов
type Registry interface {
	List() ([]*models.BotInstance, error)
}

// PositionStore - долговечное состояние политик по позициям
type PositionStore interface {
	Get(instanceID string, tradeID int64) (*models.PositionState, error)
	Save(ps *models.PositionState) error
	PruneClosed(instanceID string, openTradeIDs []int64) error
}

// ActionLog - журнал исполненных действий
type ActionLog interface {
	Append(entry *models.ActionLogEntry) error
}

// SettingsSource - загрузчик политик инстанса
type SettingsSource interface {
	Load(instanceID string) (*models.FeatureSettings, error)
}

// Broadcaster - рассылка событий контура операторам
type Broadcaster interface {
	BroadcastActionExecuted(msg *websocket.ActionExecutedMessage)
	BroadcastTradingPaused(instanceID, reason string)
	BroadcastCycleSummary(data *websocket.CycleSummaryData)
}

// Config - параметры контура
type Config struct {
	CheckInterval        time.Duration // период цикла мониторинга
	PriceRefreshInterval time.Duration // период обновления референсной цены
	BatchSize            int           // инстансов в конкурентном батче
	RetryThreshold       int           // подряд идущих ошибок до warning
}

// Monitor - контур активного управления позициями
//
// Явно конструируемый объект: все зависимости передаются в NewMonitor,
// пакетного синглтона нет. Один Monitor владеет одной очередью действий
// и одним набором счётчиков ошибок.
type Monitor struct {
	cfg       Config
	registry  Registry
	clientFor func(inst *models.BotInstance) (EngineAPI, error)
	settings  SettingsSource
	positions PositionStore
	actionLog ActionLog
	prices    *PriceCache
	crash     *CrashDetector
	hub       Broadcaster
	queue     *ActionQueue
	logger    *utils.Logger

	mu       sync.Mutex
	runtimes map[string]*models.InstanceRuntime
	clients  map[string]EngineAPI
	lastRun  time.Time
	cycles   int64
}

// NewMonitor создает контур
func NewMonitor(
	cfg Config,
	registry Registry,
	clientFor func(inst *models.BotInstance) (EngineAPI, error),
	settings SettingsSource,
	positions PositionStore,
	actionLog ActionLog,
	prices *PriceCache,
	crash *CrashDetector,
	hub Broadcaster,
	logger *utils.Logger,
) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.PriceRefreshInterval <= 0 {
		cfg.PriceRefreshInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.RetryThreshold <= 0 {
		cfg.RetryThreshold = 3
	}

	return &Monitor{
		cfg:       cfg,
		registry:  registry,
		clientFor: clientFor,
		settings:  settings,
		positions: positions,
		actionLog: actionLog,
		prices:    prices,
		crash:     crash,
		hub:       hub,
		queue:     NewActionQueue(),
		logger:    logger.WithComponent("monitor"),
		runtimes:  make(map[string]*models.InstanceRuntime),
		clients:   make(map[string]EngineAPI),
	}
}

// Run крутит контур до отмены контекста
//
// Два независимых таймера: цикл мониторинга и обновление референсной
// цены для детектора обвала. Первый цикл запускается сразу.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("control loop started",
		utils.String("check_interval", m.cfg.CheckInterval.String()),
		utils.Int("batch_size", m.cfg.BatchSize))

	m.refreshReferencePrice(ctx)
	m.RunCycle(ctx)

	checkTicker := time.NewTicker(m.cfg.CheckInterval)
	priceTicker := time.NewTicker(m.cfg.PriceRefreshInterval)
	defer checkTicker.Stop()
	defer priceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("control loop stopped")
			return
		case <-priceTicker.C:
			m.refreshReferencePrice(ctx)
		case <-checkTicker.C:
			m.RunCycle(ctx)
		}
	}
}

// refreshReferencePrice обновляет цену референсной пары
//
// Цену спрашиваем у первого отвечающего инстанса: у каждого движка
// локальный доступ к рынку, чей именно - не важно.
func (m *Monitor) refreshReferencePrice(ctx context.Context) {
	if m.crash == nil {
		return
	}

	instances, err := m.registry.List()
	if err != nil {
		m.logger.Warn("list instances for price refresh", utils.Err(err))
		return
	}

	pair := m.crash.Pair()
	for _, inst := range instances {
		client, err := m.client(inst)
		if err != nil {
			continue
		}
		price, err := client.Ticker(ctx, pair)
		if err != nil {
			continue
		}
		m.crash.Observe(price)
		m.prices.Set(pair, price)
		return
	}

	m.logger.Warn("no instance answered reference price", utils.Pair(pair))
}

// client возвращает кэшированный клиент движка инстанса
func (m *Monitor) client(inst *models.BotInstance) (EngineAPI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[inst.InstanceID]; ok {
		return c, nil
	}
	c, err := m.clientFor(inst)
	if err != nil {
		return nil, err
	}
	m.clients[inst.InstanceID] = c
	return c, nil
}

// runtime возвращает счётчики инстанса, создавая их при первом обращении
func (m *Monitor) runtime(instanceID string) *models.InstanceRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.runtimes[instanceID]
	if !ok {
		rt = &models.InstanceRuntime{}
		m.runtimes[instanceID] = rt
	}
	return rt
}

// Status - снимок состояния контура для операторского API
type Status struct {
	LastCycleAt time.Time                          `json:"last_cycle_at"`
	Cycles      int64                              `json:"cycles"`
	QueueDepth  int                                `json:"queue_depth"`
	CrashSignal bool                               `json:"crash_signal"`
	Instances   map[string]*models.InstanceRuntime `json:"instances"`
}

// Status возвращает снимок состояния контура
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	instances := make(map[string]*models.InstanceRuntime, len(m.runtimes))
	for id, rt := range m.runtimes {
		copied := *rt
		instances[id] = &copied
	}

	crashed := false
	if m.crash != nil {
		crashed = m.crash.Crashed()
	}

	return Status{
		LastCycleAt: m.lastRun,
		Cycles:      m.cycles,
		QueueDepth:  m.queue.Len(),
		CrashSignal: crashed,
		Instances:   instances,
	}
}

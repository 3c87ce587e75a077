package monitor

import (
	"sync"
	"time"

	"orchestrator/pkg/utils"
)

// CrashDetector обнаруживает обвал рынка по референсной паре
//
// Держит скользящее окно наблюдений цены и сравнивает последнюю цену с
// наблюдением, ближайшим к lookback назад. Падение глубже severity
// трактуется как обвал: все инстансы с включённым emergency stop
// прекращают торговлю до восстановления.
type CrashDetector struct {
	mu sync.Mutex

	pair     string
	window   time.Duration // сколько истории держим
	lookback time.Duration // с какой давностью сравниваем
	severity float64       // порог падения в процентах

	samples []priceSample
	logger  *utils.Logger

	// подменяется в тестах
	now func() time.Time
}

type priceSample struct {
	price float64
	at    time.Time
}

// NewCrashDetector создает детектор обвала
func NewCrashDetector(pair string, window, lookback time.Duration, severity float64, logger *utils.Logger) *CrashDetector {
	return &CrashDetector{
		pair:     pair,
		window:   window,
		lookback: lookback,
		severity: severity,
		logger:   logger.WithComponent("crash").WithPair(pair),
		now:      time.Now,
	}
}

// Pair возвращает референсную пару детектора
func (d *CrashDetector) Pair() string {
	return d.pair
}

// Observe добавляет наблюдение цены и обрезает окно
func (d *CrashDetector) Observe(price float64) {
	if price <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.samples = append(d.samples, priceSample{price: price, at: now})

	cutoff := now.Add(-d.window)
	trimmed := d.samples[:0]
	for _, s := range d.samples {
		if s.at.After(cutoff) {
			trimmed = append(trimmed, s)
		}
	}
	d.samples = trimmed
}

// Crashed сообщает, наблюдается ли обвал
//
// Сравнивает последнее наблюдение с наблюдением, ближайшим к lookback
// назад. Пока истории меньше lookback, обвал не объявляется: лучше
// поторговать лишние минуты после старта, чем остановить всё по шуму.
func (d *CrashDetector) Crashed() bool {
	crashed, _ := d.Check()
	return crashed
}

// Check возвращает признак обвала и фактическое падение в процентах
func (d *CrashDetector) Check() (bool, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.samples) < 2 {
		return false, 0
	}

	latest := d.samples[len(d.samples)-1]
	target := latest.at.Add(-d.lookback)

	// Наблюдение, ближайшее к lookback назад
	ref := d.samples[0]
	best := absDuration(ref.at.Sub(target))
	for _, s := range d.samples[1:] {
		if diff := absDuration(s.at.Sub(target)); diff < best {
			ref = s
			best = diff
		}
	}

	if ref.at.Equal(latest.at) || ref.price <= 0 {
		return false, 0
	}

	dropPercent := (ref.price - latest.price) / ref.price * 100
	if dropPercent > d.severity {
		d.logger.Warn("market crash detected",
			utils.Float64("reference_price", ref.price), utils.Float64("latest_price", latest.price),
			utils.Float64("drop_percent", dropPercent))
		CrashSignalGauge.Set(1)
		return true, dropPercent
	}

	CrashSignalGauge.Set(0)
	return false, dropPercent
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

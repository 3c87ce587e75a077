package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"orchestrator/pkg/utils"
)

// Watcher следит за файлами настроек инстансов
//
// События редактирования приходят пачками (редакторы пишут файл в
// несколько системных вызовов), поэтому на каждый путь действует
// trailing-edge debounce: наружу уходит одно событие спустя окно тишины
// после последней записи.
type Watcher struct {
	fsw      *fsnotify.Watcher
	events   chan string
	debounce time.Duration
	logger   *utils.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher создает наблюдатель с указанным окном debounce
func NewWatcher(debounce time.Duration, logger *utils.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		fsw:      fsw,
		events:   make(chan string, 64),
		debounce: debounce,
		logger:   logger.WithComponent("watcher"),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Add подключает каталог к наблюдению
func (w *Watcher) Add(dir string) error {
	return w.fsw.Add(dir)
}

// Events возвращает канал путей изменившихся файлов
// Каждый путь приходит один раз на пачку изменений
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Run обрабатывает события файловой системы до отмены контекста
// Запускается в отдельной горутине
func (w *Watcher) Run(ctx context.Context) {
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.bump(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", utils.Err(err))
		}
	}
}

// bump сдвигает debounce-таймер пути
func (w *Watcher) bump(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.debounce)
		return
	}

	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.events <- path:
		default:
			w.logger.Warn("watch event dropped, channel full", utils.String("path", path))
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}

// Close останавливает наблюдение
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

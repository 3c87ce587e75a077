package placement

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"orchestrator/internal/models"
	"orchestrator/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "console", Output: "stderr"})
}

func newTestManager(t *testing.T) (*Manager, *Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "placement.json")
	store := NewStore(path)

	m, err := NewManager(store, 3, nil, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, store
}

// checkInvariants проверяет инварианты документа размещения:
// ёмкость не превышена, mapping и записи пулов взаимно согласованы
func checkInvariants(t *testing.T, state *models.PlacementState) {
	t.Helper()

	seen := make(map[string]string)
	for poolID, pool := range state.Pools {
		if len(pool.Instances) > pool.Capacity {
			t.Errorf("pool %s holds %d instances, capacity %d", poolID, len(pool.Instances), pool.Capacity)
		}
		for _, instanceID := range pool.Instances {
			if prev, ok := seen[instanceID]; ok {
				t.Errorf("instance %s placed in both %s and %s", instanceID, prev, poolID)
			}
			seen[instanceID] = poolID

			if mapped, ok := state.BotMapping[instanceID]; !ok || mapped != poolID {
				t.Errorf("instance %s in pool %s, but mapping says %q", instanceID, poolID, mapped)
			}
		}
	}
	for instanceID, poolID := range state.BotMapping {
		pool, ok := state.Pools[poolID]
		if !ok {
			t.Errorf("mapping %s -> %s points to missing pool", instanceID, poolID)
			continue
		}
		if !pool.Contains(instanceID) {
			t.Errorf("mapping %s -> %s, but pool record does not contain instance", instanceID, poolID)
		}
	}
}

func TestManagerPlaceFillsPoolsInCreationOrder(t *testing.T) {
	m, _ := newTestManager(t)

	// Ёмкость 3: первые три инстанса попадают в один пул
	var firstPool string
	for i, id := range []string{"bot-1", "bot-2", "bot-3"} {
		poolID, err := m.Place(id)
		if err != nil {
			t.Fatalf("Place(%s) error = %v", id, err)
		}
		if i == 0 {
			firstPool = poolID
		} else if poolID != firstPool {
			t.Errorf("Place(%s) = %s, want first pool %s", id, poolID, firstPool)
		}
		checkInvariants(t, m.Snapshot())
	}

	// Четвёртый переполняет: создаётся второй пул
	secondPool, err := m.Place("bot-4")
	if err != nil {
		t.Fatalf("Place(bot-4) error = %v", err)
	}
	if secondPool == firstPool {
		t.Error("Place(bot-4) reused full pool")
	}

	state := m.Snapshot()
	checkInvariants(t, state)

	if state.Pools[firstPool].Status != models.PoolStatusFull {
		t.Errorf("first pool status = %s, want full", state.Pools[firstPool].Status)
	}
	if state.Pools[secondPool].Status != models.PoolStatusActive {
		t.Errorf("second pool status = %s, want active", state.Pools[secondPool].Status)
	}
}

func TestManagerPlaceFirstFitPrefersOldestPool(t *testing.T) {
	m, _ := newTestManager(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	nowFunc = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	defer func() { nowFunc = time.Now }()

	// Заполняем первый пул и создаём второй
	for _, id := range []string{"bot-1", "bot-2", "bot-3", "bot-4"} {
		if _, err := m.Place(id); err != nil {
			t.Fatalf("Place(%s) error = %v", id, err)
		}
	}

	oldest, _ := m.PoolFor("bot-1")

	// Освобождаем место в старшем пуле: следующий инстанс идёт туда же,
	// хотя во втором пуле тоже есть место
	if err := m.Remove("bot-2"); err != nil {
		t.Fatalf("Remove(bot-2) error = %v", err)
	}

	poolID, err := m.Place("bot-5")
	if err != nil {
		t.Fatalf("Place(bot-5) error = %v", err)
	}
	if poolID != oldest {
		t.Errorf("Place(bot-5) = %s, want oldest pool %s", poolID, oldest)
	}
	checkInvariants(t, m.Snapshot())
}

func TestManagerPlaceDuplicate(t *testing.T) {
	m, _ := newTestManager(t)

	poolID, err := m.Place("bot-1")
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	got, err := m.Place("bot-1")
	if !errors.Is(err, ErrAlreadyPlaced) {
		t.Errorf("Place() duplicate error = %v, want ErrAlreadyPlaced", err)
	}
	if got != poolID {
		t.Errorf("Place() duplicate returned %s, want existing pool %s", got, poolID)
	}
}

func TestManagerRemoveRestoresSnapshot(t *testing.T) {
	m, _ := newTestManager(t)

	for _, id := range []string{"bot-1", "bot-2"} {
		if _, err := m.Place(id); err != nil {
			t.Fatalf("Place(%s) error = %v", id, err)
		}
	}

	before := m.Snapshot()

	// Размещение в существующий пул и немедленное удаление возвращают
	// документ к исходному снапшоту
	if _, err := m.Place("bot-3"); err != nil {
		t.Fatalf("Place(bot-3) error = %v", err)
	}
	if err := m.Remove("bot-3"); err != nil {
		t.Fatalf("Remove(bot-3) error = %v", err)
	}

	after := m.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("place+remove changed state:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestManagerRemoveEmptiesPool(t *testing.T) {
	m, _ := newTestManager(t)

	poolID, err := m.Place("bot-1")
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	if err := m.Remove("bot-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	state := m.Snapshot()
	pool, ok := state.Pools[poolID]
	if !ok {
		t.Fatal("empty pool record was deleted, want it kept as stopped")
	}
	if pool.Status != models.PoolStatusStopped {
		t.Errorf("empty pool status = %s, want stopped", pool.Status)
	}
	if _, ok := state.BotMapping["bot-1"]; ok {
		t.Error("mapping survived removal")
	}
}

func TestManagerRemoveNotPlaced(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.Remove("ghost"); !errors.Is(err, ErrNotPlaced) {
		t.Errorf("Remove() error = %v, want ErrNotPlaced", err)
	}
}

func TestManagerDrain(t *testing.T) {
	m, _ := newTestManager(t)

	poolID, err := m.Place("bot-1")
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	if err := m.Drain(poolID); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	// Дренируемый пул не принимает размещения: создаётся новый
	other, err := m.Place("bot-2")
	if err != nil {
		t.Fatalf("Place(bot-2) error = %v", err)
	}
	if other == poolID {
		t.Error("draining pool accepted a placement")
	}

	// Повторный drain недопустим
	if err := m.Drain(poolID); err == nil {
		t.Error("Drain() on draining pool succeeded, want error")
	}

	if err := m.Drain("no-such-pool"); !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("Drain() error = %v, want ErrPoolNotFound", err)
	}
}

type refusingProvisioner struct{}

func (refusingProvisioner) ProvisionPool(poolID string, capacity int) error {
	return errors.New("no slots left")
}

func TestManagerPlaceProvisionerRefusal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "placement.json")
	m, err := NewManager(NewStore(path), 1, refusingProvisioner{}, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if _, err := m.Place("bot-1"); !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("Place() error = %v, want ErrCapacityExhausted", err)
	}

	state := m.Snapshot()
	if len(state.Pools) != 0 || len(state.BotMapping) != 0 {
		t.Errorf("refused placement left state behind: %+v", state)
	}
}

func TestManagerStatePersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "placement.json")
	store := NewStore(path)

	m, err := NewManager(store, 3, nil, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	poolID, err := m.Place("bot-1")
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	// "Рестарт": новый менеджер над тем же файлом
	m2, err := NewManager(NewStore(path), 3, nil, testLogger())
	if err != nil {
		t.Fatalf("NewManager() after restart error = %v", err)
	}

	got, ok := m2.PoolFor("bot-1")
	if !ok || got != poolID {
		t.Errorf("PoolFor() after restart = (%s, %v), want (%s, true)", got, ok, poolID)
	}
	checkInvariants(t, m2.Snapshot())
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope.json"))

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(state.Pools) != 0 || len(state.BotMapping) != 0 {
		t.Errorf("Load() missing file = %+v, want empty state", state)
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "placement.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewStore(path).Load(); err == nil {
		t.Error("Load() corrupt file succeeded, want error")
	}
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "placement.json"))

	state := models.NewPlacementState()
	state.Pools["pool-a"] = &models.Pool{ID: "pool-a", Capacity: 3, Instances: []string{"bot-1"}, Status: models.PoolStatusActive}
	state.BotMapping["bot-1"] = "pool-a"

	if err := store.Save(state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "placement.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir after Save() = %v, want only placement.json", names)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(state, loaded) {
		t.Errorf("Load() = %+v, want %+v", loaded, state)
	}
}

// pooltool - консольная утилита для просмотра состояния оркестратора.
//
// Таблица пулов читается из документа размещения напрямую с диска, серверу
// при этом работать не обязательно. Журнал действий (-actions) читается из
// Postgres. Только чтение: мутации идут через операторский API.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"github.com/olekukonko/tablewriter"

	"orchestrator/internal/placement"
	"orchestrator/internal/repository"
)

func main() {
	var (
		stateFile = flag.String("state", "data/placement.json", "путь к документу размещения")
		showBots  = flag.Bool("bots", false, "вывести также таблицу инстансов")
		actions   = flag.String("actions", "", "вывести журнал действий инстанса (нужен -dsn)")
		dsn       = flag.String("dsn", os.Getenv("DATABASE_DSN"), "Postgres DSN для журнала действий")
		limit     = flag.Int("limit", 20, "сколько записей журнала выводить")
	)
	flag.Parse()

	if *actions != "" {
		if err := printActionLog(*dsn, *actions, *limit); err != nil {
			fmt.Fprintf(os.Stderr, "pooltool: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := printPlacement(*stateFile, *showBots); err != nil {
		fmt.Fprintf(os.Stderr, "pooltool: %v\n", err)
		os.Exit(1)
	}
}

func printPlacement(stateFile string, showBots bool) error {
	state, err := placement.NewStore(stateFile).Load()
	if err != nil {
		return err
	}

	pools := make([]string, 0, len(state.Pools))
	for id := range state.Pools {
		pools = append(pools, id)
	}
	sort.Slice(pools, func(i, j int) bool {
		return state.Pools[pools[i]].CreatedAt.Before(state.Pools[pools[j]].CreatedAt)
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Pool", "Status", "Placed", "Capacity", "Created")
	for _, id := range pools {
		p := state.Pools[id]
		table.Append(
			p.ID,
			p.Status,
			fmt.Sprintf("%d", len(p.Instances)),
			fmt.Sprintf("%d", p.Capacity),
			p.CreatedAt.Format(time.RFC3339),
		)
	}
	table.Render()

	fmt.Printf("\n%d pools, %d placed instances\n", len(state.Pools), len(state.BotMapping))

	if !showBots {
		return nil
	}

	bots := make([]string, 0, len(state.BotMapping))
	for id := range state.BotMapping {
		bots = append(bots, id)
	}
	sort.Strings(bots)

	fmt.Println()
	botTable := tablewriter.NewWriter(os.Stdout)
	botTable.Header("Instance", "Pool")
	for _, id := range bots {
		botTable.Append(id, state.BotMapping[id])
	}
	botTable.Render()
	return nil
}

func printActionLog(dsn, instanceID string, limit int) error {
	if dsn == "" {
		return fmt.Errorf("action log needs -dsn or DATABASE_DSN")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := repository.NewActionLogRepository(db, 0).ListByInstance(instanceID, limit)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Executed", "Kind", "Trade", "Pair", "OK", "Detail")
	for _, e := range entries {
		ok := "yes"
		if !e.Success {
			ok = "no"
		}
		table.Append(
			e.ExecutedAt.Format(time.RFC3339),
			e.Kind,
			fmt.Sprintf("%d", e.TradeID),
			e.Pair,
			ok,
			e.Detail,
		)
	}
	table.Render()

	fmt.Printf("\n%d entries for %s\n", len(entries), instanceID)
	return nil
}

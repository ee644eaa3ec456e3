package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/data"
	"github.com/tickrpg/server/internal/handler"
	"github.com/tickrpg/server/internal/journal"
	"github.com/tickrpg/server/internal/movement"
	gonet "github.com/tickrpg/server/internal/net"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/persist"
	"github.com/tickrpg/server/internal/scripting"
	"github.com/tickrpg/server/internal/system"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              TickRPG  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m         格子 RPG · Go 遊戲伺服器          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(編號: %d)\033[0m\n\n", serverName, serverID)
}

// displayWidth counts CJK runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := max(46-displayWidth(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := humanize.Comma(int64(count))
	dotsLen := max(42-displayWidth(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("TICKRPG_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Violation store
	printSection("資料庫")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeDB, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()
	fmt.Println()

	// 4. Static data
	printSection("資料載入")
	yamlDir := cfg.Data.YAMLDir

	npcTable, err := data.LoadNpcTable(filepath.Join(yamlDir, "npc_list.yaml"))
	if err != nil {
		return fmt.Errorf("load npc table: %w", err)
	}
	printStat("NPC 模板", npcTable.Count())

	spawnList, err := data.LoadSpawnList(filepath.Join(yamlDir, "spawn_list.yaml"))
	if err != nil {
		return fmt.Errorf("load spawn list: %w", err)
	}

	resources, err := data.LoadResourceList(filepath.Join(yamlDir, "resource_list.yaml"))
	if err != nil {
		return fmt.Errorf("load resource list: %w", err)
	}

	deps := system.Deps{Npcs: npcTable}

	// Terrain and buildings are optional: without them the world is open ground.
	terrainPath := filepath.Join(yamlDir, "terrain.yaml")
	if fileExists(terrainPath) {
		terrain, err := data.LoadTerrain(terrainPath, cfg.Data.TileDir)
		if err != nil {
			return fmt.Errorf("load terrain: %w", err)
		}
		deps.Terrain = terrain
		printStat("地形格", terrain.Count())
	}
	buildingPath := filepath.Join(yamlDir, "building_list.yaml")
	if fileExists(buildingPath) {
		buildings, err := data.LoadBuildingTable(buildingPath)
		if err != nil {
			return fmt.Errorf("load buildings: %w", err)
		}
		deps.Buildings = buildings
		printStat("建築", buildings.Count())
		printStat("門", buildings.DoorCount())
	}

	// 5. Lua scripting engine
	luaEngine, err := scripting.NewEngine(cfg.Data.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	deps.Brain = luaEngine
	printOK("Lua 腳本載入完成")

	// 6. Async writers
	var recorder *persist.Recorder
	if store != nil {
		recorder = persist.NewRecorder(store, cfg.AntiCheat, log)
		deps.Recorder = recorder
		deps.Flushers = append(deps.Flushers, recorder)
	}
	var tickJournal *journal.Journal
	if cfg.Journal.Enabled {
		tickJournal = journal.Open(cfg.Journal, log)
		deps.Journal = tickJournal
		deps.Flushers = append(deps.Flushers, tickJournal)
		printOK(fmt.Sprintf("Tick 日誌 → %s", cfg.Journal.Dir))
	}

	// 7. Network
	pktReg := packet.NewRegistry(log)
	netServer, err := gonet.NewServer(cfg.Network, pktReg, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	deps.Server = netServer
	deps.Sessions = gonet.NewSessionStore()

	// 8. Orchestrator
	orch, err := system.New(cfg, deps, log)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	handler.RegisterAll(pktReg, &handler.Deps{Input: orch.InputBuffer(), Log: log})

	npcCount, nodeCount := orch.LoadSpawns(spawnList, resources)
	printStat("NPC 生成", npcCount)
	printStat("資源點", nodeCount)
	fmt.Println()

	go netServer.Serve()

	// 9. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 ws://%s%s", netServer.Addr().String(), cfg.Network.Path))
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	var tick uint64
	for {
		select {
		case <-ticker.C:
			tick++
			start := time.Now()
			orch.ProcessTick(tick)
			if d := time.Since(start); d > cfg.Network.TickRate {
				log.Warn("tick 超時", zap.Uint64("tick", tick), zap.Duration("elapsed", d))
			}
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			orch.Checkpoint()
			if recorder != nil {
				recorder.Close()
				log.Info("違規紀錄已寫入",
					zap.String("written", humanize.Comma(int64(recorder.Written()))),
					zap.Uint64("dropped", recorder.Dropped()))
			}
			if tickJournal != nil {
				tickJournal.Close()
			}
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := netServer.Shutdown(sctx)
			scancel()
			if err != nil {
				log.Warn("網路關閉逾時", zap.Error(err))
			}
			log.Info("伺服器已停止", zap.Uint64("tick", tick),
				zap.String("uptime", humanize.RelTime(time.Unix(cfg.Server.StartTime, 0), time.Now(), "", "")))
			return nil
		}
	}
}

// openStore picks the violation backend from database.driver. The returned
// store is nil for "none".
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (persist.ViolationStore, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		printOK("PostgreSQL 連線成功")
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		printOK("資料庫遷移完成")
		return persist.NewPGViolationStore(db), db.Close, nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.AntiCheat.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		st, err := persist.OpenSQLite(ctx, cfg.AntiCheat.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		printOK(fmt.Sprintf("SQLite 開啟 %s", cfg.AntiCheat.SQLitePath))
		return st, func() {
			if err := st.Close(); err != nil {
				log.Warn("關閉 SQLite 失敗", zap.Error(err))
			}
		}, nil
	default:
		printOK("未啟用資料庫，違規紀錄僅記錄於日誌")
		return nil, func() {}, nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// Compile-time checks for the adapters handed to the orchestrator.
var (
	_ movement.Terrain   = (*data.Terrain)(nil)
	_ movement.Buildings = (*data.BuildingTable)(nil)
	_ system.Brain       = (*scripting.Engine)(nil)
	_ system.Flusher     = (*journal.Journal)(nil)
)

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

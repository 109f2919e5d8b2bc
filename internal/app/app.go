package app

import (
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/dhanvantari/pharmaauth/config"
	"github.com/dhanvantari/pharmaauth/internal/chain"
	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/events"
	"github.com/dhanvantari/pharmaauth/internal/registry"
	"github.com/dhanvantari/pharmaauth/internal/reporting"
	"github.com/dhanvantari/pharmaauth/internal/verify"
	"github.com/dhanvantari/pharmaauth/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	bus       EventBus.Bus
	adapter   *chain.Adapter
	store     *registry.Store
	engine    *verify.Engine
	reports   *reporting.Service
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ RegistryProvider  = (*Application)(nil)
	_ VerifierProvider  = (*Application)(nil)
	_ ReportingProvider = (*Application)(nil)
	_ ChainProvider     = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle and rebuilds the services on top of it (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
	a.initServices()
}

// OverrideChain replaces the chain adapter (used in tests).
func (a *Application) OverrideChain(adapter *chain.Adapter) {
	a.adapter = adapter
	a.initServices()
}

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	err = metrics.InitMetrics(cfg.System.Workdir)
	if err != nil {
		zap.S().Warn("Failed to initialize metrics:", err)
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.checkDefaultManufacturer()
	a.initServices()
	a.initJob()
}

// initServices wires the registry, chain adapter, engine and reporting on the current database
func (a *Application) initServices() {
	if a.bus == nil {
		a.bus = events.NewBus()
		a.subscribeMetrics()
	}
	if a.adapter == nil {
		a.adapter = chain.NewAdapterFromConfig(a.appConfig.Chain)
	}
	a.store = registry.NewStore(a.gormDB)
	a.engine = verify.NewEngine(a.store, a.adapter, a.bus).
		WithTimeout(time.Duration(a.appConfig.Chain.TimeoutSec) * time.Second)
	if contract := a.appConfig.Chain.Contract; contract != "" {
		if _, err := a.engine.WithDefaultContract(contract); err != nil {
			zap.L().Error("chain contract config error", zap.String("namespace", "app"),
				zap.String("contract", contract), zap.Error(err))
		}
	}
	a.reports = reporting.NewService(a.store, a.bus)
}

// subscribeMetrics counts verdicts, scans and reports
func (a *Application) subscribeMetrics() {
	subs := map[string]interface{}{
		events.TopicVerified: func(ev events.VerifyEvent) {
			metrics.Incr("verify_" + ev.Verdict)
			if ev.Degraded {
				metrics.Incr("verify_degraded")
			}
		},
		events.TopicScanRecorded: func(ev events.ScanEvent) {
			metrics.Incr("scan_" + ev.Result)
		},
		events.TopicReportSubmitted: func(ev events.ReportEvent) {
			metrics.Incr("report_submitted")
		},
		events.TopicReportStatus: func(ev events.ReportEvent) {
			metrics.Incr("report_" + ev.Status)
		},
	}
	for topic, fn := range subs {
		if err := a.bus.Subscribe(topic, fn); err != nil {
			zap.L().Error("event subscribe failed", zap.String("namespace", "app"), zap.String("topic", topic), zap.Error(err))
		}
	}
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	return db.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Store() *registry.Store {
	return a.store
}

func (a *Application) Engine() *verify.Engine {
	return a.engine
}

func (a *Application) Reports() *reporting.Service {
	return a.reports
}

func (a *Application) Chain() *chain.Adapter {
	return a.adapter
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.adapter != nil {
		a.adapter.Close()
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}

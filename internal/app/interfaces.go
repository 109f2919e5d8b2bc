package app

import (
	"github.com/dhanvantari/pharmaauth/config"
	"github.com/dhanvantari/pharmaauth/internal/chain"
	"github.com/dhanvantari/pharmaauth/internal/registry"
	"github.com/dhanvantari/pharmaauth/internal/reporting"
	"github.com/dhanvantari/pharmaauth/internal/verify"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// RegistryProvider provides the batch registry
type RegistryProvider interface {
	Store() *registry.Store
}

// VerifierProvider provides the verification engine
type VerifierProvider interface {
	Engine() *verify.Engine
}

// ReportingProvider provides report intake and triage
type ReportingProvider interface {
	Reports() *reporting.Service
}

// ChainProvider provides the read-only chain adapter
type ChainProvider interface {
	Chain() *chain.Adapter
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SchedulerProvider
	RegistryProvider
	VerifierProvider
	ReportingProvider
	ChainProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
}

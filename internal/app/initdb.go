package app

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dhanvantari/pharmaauth/config"
	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultManufacturerUsername = "admin"
	DefaultManufacturerPassword = "pharmaauth"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		dsn := cfg.Name
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			dsn = filepath.Join(workdir, "data", common.IfEmptyStr(cfg.Name, "pharmaauth")+".db")
		}
		dialector = sqlite.Open(dsn)
	default:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		panic(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	if cfg.MaxConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
	}
	if cfg.IdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db
}

// checkDefaultManufacturer makes sure a usable admin manufacturer exists
func (a *Application) checkDefaultManufacturer() {
	hashed, err := common.HashPassword(DefaultManufacturerPassword)
	if err != nil {
		zap.L().Error("failed to hash default password", zap.String("namespace", "app"), zap.Error(err))
		return
	}
	seed := domain.Manufacturer{
		ID:          common.UUIDint64(),
		Username:    DefaultManufacturerUsername,
		Password:    hashed,
		Realname:    "administrator",
		CompanyName: "PharmaAuth",
		Email:       common.NA,
		IsVerified:  true,
		Status:      common.ENABLED,
		Remark:      "default manufacturer",
		LastLogin:   time.Now(),
	}
	if err := ensureManufacturer(a.gormDB, seed); err != nil {
		zap.L().Error("default manufacturer check failed", zap.String("namespace", "app"),
			zap.String("username", seed.Username), zap.Error(err))
	}
}

// ensureManufacturer creates seed on first run. Later runs only re-enable the
// account and restore a blank password; a set password is left alone.
func ensureManufacturer(db *gorm.DB, seed domain.Manufacturer) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var account domain.Manufacturer
		res := tx.Where(domain.Manufacturer{Username: seed.Username}).Attrs(seed).FirstOrCreate(&account)
		if res.Error != nil {
			return errors.Wrap(res.Error, "load manufacturer")
		}
		if res.RowsAffected > 0 {
			zap.L().Info("initialized default manufacturer account", zap.String("namespace", "app"),
				zap.String("username", seed.Username))
			return nil
		}

		fixes := manufacturerRepairs(account, seed.Password)
		if len(fixes) == 0 {
			return nil
		}
		fixed := make([]string, 0, len(fixes))
		for k := range fixes {
			fixed = append(fixed, k)
		}
		sort.Strings(fixed)
		fixes["updated_at"] = time.Now()
		if err := tx.Model(&domain.Manufacturer{}).Where("id = ?", account.ID).Updates(fixes).Error; err != nil {
			return errors.Wrap(err, "repair manufacturer")
		}
		zap.L().Warn("repaired default manufacturer account", zap.String("namespace", "app"),
			zap.String("username", seed.Username), zap.Strings("fixed", fixed))
		return nil
	})
}

// manufacturerRepairs the column updates that make account usable again
func manufacturerRepairs(account domain.Manufacturer, hashedPassword string) map[string]interface{} {
	fixes := map[string]interface{}{}
	if strings.TrimSpace(account.Password) == "" {
		fixes["password"] = hashedPassword
	}
	if !strings.EqualFold(account.Status, common.ENABLED) {
		fixes["status"] = common.ENABLED
	}
	return fixes
}

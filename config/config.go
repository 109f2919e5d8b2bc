package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system settings
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig http api settings
type WebConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Secret string `yaml:"secret"` // HS256 key for session tokens
	Origin string `yaml:"origin"` // public origin used in verification links
}

// DBConfig database settings, type is postgres or sqlite
type DBConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// ChainConfig read-only chain access.
// WalletRpc is tried first, PublicRpc is the fallback endpoint.
type ChainConfig struct {
	WalletRpc  string `yaml:"wallet_rpc"`
	PublicRpc  string `yaml:"public_rpc"`
	ChainId    int64  `yaml:"chain_id"`
	Contract   string `yaml:"contract"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// LogConfig logger settings
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

type AppConfig struct {
	System   SysConfig   `yaml:"system"`
	Web      WebConfig   `yaml:"web"`
	Database DBConfig    `yaml:"database"`
	Chain    ChainConfig `yaml:"chain"`
	Logger   LogConfig   `yaml:"logger"`
}

func (c *AppConfig) GetLogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return filepath.Join(c.System.Workdir, "data")
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "PharmaAuth",
		Location: "Asia/Kolkata",
		Workdir:  "/var/pharmaauth",
		Debug:    true,
	},
	Web: WebConfig{
		Host:   "0.0.0.0",
		Port:   1816,
		Secret: "9b6de5cc-0731-4bf1-9a4c-pharmaauth",
		Origin: "http://localhost:5173",
	},
	Database: DBConfig{
		Type:     "postgres",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "pharmaauth",
		User:     "postgres",
		Passwd:   "postgres",
		MaxConn:  100,
		IdleConn: 10,
		Debug:    false,
	},
	Chain: ChainConfig{
		PublicRpc:  "https://rpc-amoy.polygon.technology/",
		ChainId:    80002,
		Contract:   "",
		TimeoutSec: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/pharmaauth/logs/pharmaauth.log",
	},
}

// LoadConfig reads the yaml file when it exists, then applies environment overrides.
// An empty path uses the defaults.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := *DefaultAppConfig
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfile)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", cfile)
		}
	}
	applyEnv(&cfg)
	if cfg.Chain.TimeoutSec <= 0 {
		cfg.Chain.TimeoutSec = 10
	}
	return &cfg, nil
}

func setEnvString(name string, val *string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*val = strings.TrimSpace(v)
	}
}

func setEnvInt(name string, val *int) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*val = cast.ToInt(v)
	}
}

func setEnvInt64(name string, val *int64) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*val = cast.ToInt64(v)
	}
}

func setEnvBool(name string, val *bool) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*val = cast.ToBool(v)
	}
}

func applyEnv(cfg *AppConfig) {
	setEnvString("PHARMAAUTH_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvString("PHARMAAUTH_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBool("PHARMAAUTH_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvString("PHARMAAUTH_WEB_HOST", &cfg.Web.Host)
	setEnvInt("PHARMAAUTH_WEB_PORT", &cfg.Web.Port)
	setEnvString("PHARMAAUTH_WEB_SECRET", &cfg.Web.Secret)
	setEnvString("PHARMAAUTH_WEB_ORIGIN", &cfg.Web.Origin)

	setEnvString("PHARMAAUTH_DB_TYPE", &cfg.Database.Type)
	setEnvString("PHARMAAUTH_DB_HOST", &cfg.Database.Host)
	setEnvInt("PHARMAAUTH_DB_PORT", &cfg.Database.Port)
	setEnvString("PHARMAAUTH_DB_NAME", &cfg.Database.Name)
	setEnvString("PHARMAAUTH_DB_USER", &cfg.Database.User)
	setEnvString("PHARMAAUTH_DB_PWD", &cfg.Database.Passwd)
	setEnvBool("PHARMAAUTH_DB_DEBUG", &cfg.Database.Debug)

	setEnvString("PHARMAAUTH_CHAIN_WALLET_RPC", &cfg.Chain.WalletRpc)
	setEnvString("PHARMAAUTH_CHAIN_PUBLIC_RPC", &cfg.Chain.PublicRpc)
	setEnvInt64("PHARMAAUTH_CHAIN_ID", &cfg.Chain.ChainId)
	setEnvString("PHARMAAUTH_CHAIN_CONTRACT", &cfg.Chain.Contract)
	setEnvInt("PHARMAAUTH_CHAIN_TIMEOUT", &cfg.Chain.TimeoutSec)

	setEnvString("PHARMAAUTH_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBool("PHARMAAUTH_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvString("PHARMAAUTH_LOGGER_FILENAME", &cfg.Logger.Filename)
}

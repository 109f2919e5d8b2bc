package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhanvantari/pharmaauth/config"
	"github.com/dhanvantari/pharmaauth/internal/adminapi"
	"github.com/dhanvantari/pharmaauth/internal/app"
	"github.com/dhanvantari/pharmaauth/internal/webserver"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "", "config yaml file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables")
	printcfg = flag.Bool("printcfg", false, "print effective config")
)

var version = "dev"

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version)
		return
	}
	if *h {
		flag.Usage()
		return
	}

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *printcfg {
		out, _ := yaml.Marshal(cfg)
		fmt.Println(string(out))
		return
	}

	for _, dir := range []string{cfg.GetDataDir(), cfg.GetLogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.S().Info("database initialized")
		return
	}

	adminapi.Init()
	server := webserver.NewAdminServer(application)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		zap.S().Infof("received %s, shutting down", s)
	case err := <-errc:
		if err != nil {
			zap.S().Errorf("api server stopped: %v", err)
		}
	}

	if err := server.Shutdown(10 * time.Second); err != nil {
		zap.S().Errorf("api server shutdown: %v", err)
	}
}

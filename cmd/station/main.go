// Basic Station gateway agent.
// Bridges a SX130x concentrator to a LoRaWAN Network Server over WebSocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MultiTechSystems/basicstation/internal/config"
	"github.com/MultiTechSystems/basicstation/internal/engine"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "station",
		Short: "LoRaWAN Basic Station",
		Long:  "Gateway agent bridging a SX130x concentrator to a LoRaWAN Network Server.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the station",
		RunE:  runStation,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("station v%s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/station/station.conf", "Configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStation(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadStation(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slaves, err := config.LoadSlaves(configFile)
	if err != nil {
		return fmt.Errorf("failed to load slave overlays: %w", err)
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	logFile, err := openLogFile(cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if logFile != nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	log.WithFields(log.Fields{
		"subsys": "SYS", "gateway_eui": cfg.Gateway.EUI, "region": cfg.Gateway.Region, "slaves": len(slaves),
	}).Info("starting station")

	eng, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	fatal := false
loop:
	for {
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case reason := <-eng.Fatal():
			log.WithFields(log.Fields{"subsys": "SYS", "reason": reason}).Error("time-domain synchronization failed fatally, shutting down")
			fatal = true
			break loop
		}

		if sig == syscall.SIGHUP {
			log.WithFields(log.Fields{"subsys": "SYS"}).Info("received SIGHUP, reopening log file and reloading config")
			if newCfg, err := config.LoadStation(configFile); err != nil {
				log.WithFields(log.Fields{"subsys": "SYS"}).WithError(err).Warn("failed to reload config on SIGHUP")
			} else {
				cfg = newCfg
			}
			if newFile, err := openLogFile(cfg.Logging.File); err != nil {
				log.WithFields(log.Fields{"subsys": "SYS"}).WithError(err).Warn("failed to reopen log file on SIGHUP")
			} else if newFile != nil {
				old := logFile
				log.SetOutput(newFile)
				logFile = newFile
				if old != nil {
					old.Close()
				}
			}
			continue
		}

		log.WithFields(log.Fields{"subsys": "SYS", "signal": sig}).Info("received signal, shutting down")
		break
	}

	if err := eng.Stop(); err != nil {
		log.WithFields(log.Fields{"subsys": "SYS"}).WithError(err).Warn("error during shutdown")
	}

	log.WithFields(log.Fields{"subsys": "SYS"}).Info("shutdown complete")
	if fatal {
		return fmt.Errorf("station stopped after an unrecoverable time-domain fault")
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

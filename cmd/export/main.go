package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"termin/internal/config"
	"termin/internal/database"
	"termin/internal/exports"
	"termin/internal/logging"
)

// Standalone export tool: dumps the full appointment list to an XLSX file
// without going through the HTTP admin surface.
func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (defaults to $CONFIG_PATH or configs/config.yaml)")
	outDir := flag.String("out", "", "output directory (defaults to the configured export path)")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.ForComponent(baseLogger, "export")

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	appts, err := db.ListAppointments(context.Background())
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}

	exportPath := cfg.Exports.Path
	if *outDir != "" {
		exportPath = *outDir
	}

	exporter := exports.NewExporter(exportPath, &logger)
	file, err := exporter.AppointmentsToExcel(appts)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	fmt.Printf("exported %d appointments to %s\n", len(appts), file)
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/marionridgway/Project-Reactor/config"
	"github.com/marionridgway/Project-Reactor/database"
	"github.com/marionridgway/Project-Reactor/logger"
	"github.com/marionridgway/Project-Reactor/models"
	"github.com/marionridgway/Project-Reactor/server"
	"github.com/marionridgway/Project-Reactor/store"

	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}

	command := os.Args[1]

	// Initialize logging only for commands that need it
	if needsLogging(command) {
		cfg := loadConfig()
		if err := logger.Init(cfg); err != nil {
			log.Fatalf("Failed to initialize logging: %v", err)
		}
		defer func() {
			err := logger.Close()
			if err != nil {
				log.Fatalf("Failed to close logging: %v", err)
			}
		}()
		logger.LogCommand(os.Args[0], os.Args)
	}

	switch command {
	case "serve":
		serveCommand()
	case "connect":
		connectCommand()
	case "migrate":
		migrateCommand()
	case "db:info":
		dbInfoCommand()
	case "report":
		if len(os.Args) < 3 {
			fmt.Println("Error: experiment number required")
			fmt.Println("Usage: go run main.go report <exp_number>")
			return
		}
		reportCommand(os.Args[2])
	case "help":
		showHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showHelp()
	}
}

// needsLogging determines which commands need logging
func needsLogging(command string) bool {
	loggingCommands := map[string]bool{
		"serve":   true,
		"connect": true,
		"migrate": true,
		"report":  true,
	}
	return loggingCommands[command]
}

func showHelp() {
	fmt.Println("Project Reactor - Telemetry Bridge")
	fmt.Println("")
	fmt.Println("Usage: go run main.go <command> [arguments]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  serve                Listen for the reactor controller and log telemetry")
	fmt.Println("  connect              Test database connection")
	fmt.Println("  migrate              Create the experiments/reagents/sensor_log tables")
	fmt.Println("  db:info              Show database information")
	fmt.Println("  report <exp_number>  Print experiment metadata, reagents and latest samples")
	fmt.Println("  help                 Show this help message")
	fmt.Println("")
	fmt.Println("Configuration:")
	fmt.Println("  Edit config.yaml to configure the listen address and database settings")
	fmt.Println("")
	fmt.Println("Message format:")
	fmt.Println("  Newline-delimited JSON objects on the TCP stream:")
	fmt.Println(`  {"type":"setup","experiment":{"expNo":"RX-1","operator":"...","description":"...","reagents":[...]}}`)
	fmt.Println(`  {"type":"stop"}`)
	fmt.Println(`  {"temp":25.3,"uv1":0.9,...}  (sensor sample, any subset of channels)`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func connectDatabase() (*config.Config, *gorm.DB, error) {
	cfg := loadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, db, nil
}

func serveCommand() {
	cfg, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Connection failed: %v", err)
	}
	defer database.Close(db)

	if cfg.Migration.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Fatalf("Migration failed: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, cfg, store.New(db)); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
	logger.Println("✓ Server shut down cleanly")
}

func connectCommand() {
	logger.Println("Testing database connection...")

	cfg, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Connection failed: %v", err)
	}
	defer database.Close(db)

	logger.Printf("✓ Successfully connected to %s database\n", cfg.Database.Driver)

	// Show connection info
	info := database.GetDatabaseInfo(db, cfg)
	infoJSON, _ := json.MarshalIndent(info, "", "  ")
	logger.Printf("Connection info: %s\n", infoJSON)
}

func migrateCommand() {
	logger.Println("Creating telemetry tables...")

	_, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}

	logger.Println("✓ Schema is up to date")
}

func dbInfoCommand() {
	fmt.Println("Database Information:")
	fmt.Println(strings.Repeat("=", 50))

	cfg, db, err := connectDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	info := database.GetDatabaseInfo(db, cfg)

	// Display basic database info
	fmt.Printf("Database Type:     %v\n", info["driver"])
	fmt.Printf("Connection Status: %v\n", getConnectionStatusText(info["connected"]))

	// Display database-specific connection details
	switch cfg.Database.Driver {
	case "mysql", "postgres":
		fmt.Printf("Host:              %v\n", info["host"])
		fmt.Printf("Port:              %v\n", info["port"])
		fmt.Printf("Database:          %v\n", info["database"])
	case "sqlite":
		fmt.Printf("File Path:         %v\n", info["path"])
	}

	if info["connected"] == true {
		var experimentCount, openCount, reagentCount, sampleCount int64
		db.Model(&models.Experiment{}).Count(&experimentCount)
		db.Model(&models.Experiment{}).Where("end_time IS NULL").Count(&openCount)
		db.Model(&models.Reagent{}).Count(&reagentCount)
		db.Model(&models.SensorSample{}).Count(&sampleCount)

		fmt.Println("\nData Information:")
		fmt.Printf("  Experiments:     %d (%d still open)\n", experimentCount, openCount)
		fmt.Printf("  Reagents:        %d\n", reagentCount)
		fmt.Printf("  Sensor Rows:     %d\n", sampleCount)

		if sampleCount > 0 {
			var earliest, latest time.Time
			db.Model(&models.SensorSample{}).Select("MIN(timestamp)").Scan(&earliest)
			db.Model(&models.SensorSample{}).Select("MAX(timestamp)").Scan(&latest)
			fmt.Printf("  Date Range:      %s to %s\n",
				earliest.Format("2006-01-02 15:04:05"),
				latest.Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Println("\nConnection failed - unable to retrieve detailed information")
	}

	fmt.Println(strings.Repeat("=", 50))
}

func getConnectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "✓ Connected"
	}
	return "✗ Disconnected"
}

func reportCommand(expNumber string) {
	_, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	st := store.New(db)

	meta, err := st.FetchMetadata(expNumber)
	if err != nil {
		logger.Fatalf("Failed to fetch experiment: %v", err)
	}
	if meta == nil {
		logger.Printf("No experiment metadata found for %q\n", expNumber)
		return
	}

	exp := meta.Experiment
	logger.Println("Experiment Metadata:")
	logger.Printf("  exp_number:  %s\n", exp.ExpNumber)
	logger.Printf("  operator:    %s\n", stringOrNone(exp.Operator))
	logger.Printf("  description: %s\n", stringOrNone(exp.Description))
	logger.Printf("  start_time:  %s\n", exp.StartTime.Format(time.RFC3339))
	if exp.EndTime != nil {
		logger.Printf("  end_time:    %s\n", exp.EndTime.Format(time.RFC3339))
	} else {
		logger.Printf("  end_time:    (still running)\n")
	}

	if len(meta.Reagents) == 0 {
		logger.Println("  Reagents: None")
	} else {
		logger.Println("  Reagents:")
		for _, reagent := range meta.Reagents {
			if reagent.Concentration != nil {
				logger.Printf("    - %s (%g M)\n", reagent.Name, *reagent.Concentration)
			} else {
				logger.Printf("    - %s\n", reagent.Name)
			}
		}
	}

	samples, err := st.LatestSamples(5)
	if err != nil {
		logger.Fatalf("Failed to fetch sensor log: %v", err)
	}
	if len(samples) == 0 {
		logger.Println("Sensor Log: empty")
		return
	}
	logger.Println("Last Sensor Log Rows:")
	for _, sample := range samples {
		logger.Printf("  %s exp=%s temp=%s uv1=%s flow=%s\n",
			sample.Timestamp.Format("2006-01-02 15:04:05"),
			sample.ExpNumber,
			floatOrNone(sample.Temperature),
			floatOrNone(sample.UV1),
			floatOrNone(sample.FlowRate))
	}
}

func stringOrNone(v *string) string {
	if v == nil {
		return "(none)"
	}
	return *v
}

func floatOrNone(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}

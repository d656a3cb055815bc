package session

import (
	"strings"
	"testing"

	"github.com/marionridgway/Project-Reactor/database"
	"github.com/marionridgway/Project-Reactor/models"
	"github.com/marionridgway/Project-Reactor/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newScenarioStore(t *testing.T) (*store.Store, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db), db
}

// Full ingestion pass against a real store: setup, sample, stop,
// interleaved with junk the stream must survive.
func TestIngestionScenario(t *testing.T) {
	st, db := newScenarioStore(t)

	stream := strings.Join([]string{
		"controller hello",
		`{"temp":19.9}`, // before any setup: dropped
		`{"type":"setup","experiment":{"expNo":"RX-1","operator":"A","description":"oxidation run","reagents":[{"name":"H2O2","concentration":0.5}]}}`,
		`{not json`,
		`{"temp":25.3}`,
		`{"type":"setup","experiment":{"expNo":"RX-1","operator":"B"}}`, // duplicate
		`{"temp":25.4}`,
		`{"type":"stop"}`,
		`{"temp":99}`, // after stop: dropped
	}, "\n") + "\n"

	if err := New(st).Run(strings.NewReader(stream)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var experiments []models.Experiment
	if err := db.Find(&experiments).Error; err != nil {
		t.Fatalf("query experiments: %v", err)
	}
	if len(experiments) != 1 {
		t.Fatalf("experiments rows = %d, want 1 despite the duplicate setup", len(experiments))
	}
	exp := experiments[0]
	if exp.ExpNumber != "RX-1" {
		t.Errorf("ExpNumber = %q, want RX-1", exp.ExpNumber)
	}
	if exp.Operator == nil || *exp.Operator != "A" {
		t.Errorf("Operator = %v, want the first setup's A", exp.Operator)
	}
	if exp.EndTime == nil {
		t.Error("EndTime still nil after stop")
	} else if exp.EndTime.Before(exp.StartTime) {
		t.Errorf("EndTime %v before StartTime %v", exp.EndTime, exp.StartTime)
	}

	var reagents []models.Reagent
	if err := db.Find(&reagents).Error; err != nil {
		t.Fatalf("query reagents: %v", err)
	}
	if len(reagents) != 1 || reagents[0].Name != "H2O2" {
		t.Fatalf("reagents = %+v, want the single H2O2 row", reagents)
	}

	var samples []models.SensorSample
	if err := db.Order("id ASC").Find(&samples).Error; err != nil {
		t.Fatalf("query sensor_log: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("sensor_log rows = %d, want 2 (one pre-setup and one post-stop dropped)", len(samples))
	}
	for _, sample := range samples {
		if sample.ExpNumber != "RX-1" {
			t.Errorf("sample exp_number = %q, want RX-1", sample.ExpNumber)
		}
		if sample.UV1 != nil || sample.FlowRate != nil {
			t.Errorf("unspecified channels stored non-NULL: %+v", sample)
		}
	}
	if *samples[0].Temperature != 25.3 || *samples[1].Temperature != 25.4 {
		t.Errorf("temperatures = %v, %v; want 25.3, 25.4",
			*samples[0].Temperature, *samples[1].Temperature)
	}
}

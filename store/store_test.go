package store

import (
	"errors"
	"testing"
	"time"

	"github.com/marionridgway/Project-Reactor/database"
	"github.com/marionridgway/Project-Reactor/decoder"
	"github.com/marionridgway/Project-Reactor/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A single connection keeps every statement on the same in-memory
	// database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db), db
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func testSetup(expNumber string) decoder.Setup {
	return decoder.Setup{
		ExpNumber:   expNumber,
		Operator:    strPtr("A"),
		Description: strPtr("oxidation run"),
		Reagents: []decoder.ReagentInput{
			{Name: "H2O2", Concentration: floatPtr(0.5)},
			{Name: "NaOH"},
		},
	}
}

func TestRecordSetupRoundTrip(t *testing.T) {
	st, _ := newTestStore(t)

	if err := st.RecordSetup(testSetup("RX-1")); err != nil {
		t.Fatalf("RecordSetup: %v", err)
	}

	meta, err := st.FetchMetadata("RX-1")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta == nil {
		t.Fatal("FetchMetadata returned nil for a stored experiment")
	}

	exp := meta.Experiment
	if exp.ExpNumber != "RX-1" {
		t.Errorf("ExpNumber = %q, want RX-1", exp.ExpNumber)
	}
	if exp.Operator == nil || *exp.Operator != "A" {
		t.Errorf("Operator = %v, want A", exp.Operator)
	}
	if exp.Description == nil || *exp.Description != "oxidation run" {
		t.Errorf("Description = %v, want oxidation run", exp.Description)
	}
	if exp.StartTime.IsZero() {
		t.Error("StartTime not stamped")
	}
	if exp.EndTime != nil {
		t.Errorf("EndTime = %v, want nil before stop", exp.EndTime)
	}

	if len(meta.Reagents) != 2 {
		t.Fatalf("got %d reagents, want 2", len(meta.Reagents))
	}
	if meta.Reagents[0].Name != "H2O2" {
		t.Errorf("reagent = %q, want H2O2", meta.Reagents[0].Name)
	}
	if meta.Reagents[0].Concentration == nil || *meta.Reagents[0].Concentration != 0.5 {
		t.Errorf("concentration = %v, want 0.5", meta.Reagents[0].Concentration)
	}
	if meta.Reagents[1].Concentration != nil {
		t.Errorf("omitted concentration = %v, want nil", meta.Reagents[1].Concentration)
	}
}

func TestRecordSetupDuplicate(t *testing.T) {
	st, db := newTestStore(t)

	if err := st.RecordSetup(testSetup("RX-1")); err != nil {
		t.Fatalf("first RecordSetup: %v", err)
	}
	err := st.RecordSetup(testSetup("RX-1"))
	if !errors.Is(err, ErrDuplicateExperiment) {
		t.Fatalf("second RecordSetup error = %v, want ErrDuplicateExperiment", err)
	}

	var experiments int64
	db.Model(&models.Experiment{}).Count(&experiments)
	if experiments != 1 {
		t.Errorf("experiments rows = %d, want 1", experiments)
	}

	// The transaction rolls back, so the duplicate's reagents are gone
	// too.
	var reagents int64
	db.Model(&models.Reagent{}).Count(&reagents)
	if reagents != 2 {
		t.Errorf("reagents rows = %d, want the first setup's 2", reagents)
	}
}

func TestRecordStop(t *testing.T) {
	st, _ := newTestStore(t)

	if err := st.RecordSetup(testSetup("RX-1")); err != nil {
		t.Fatalf("RecordSetup: %v", err)
	}
	if err := st.RecordStop("RX-1"); err != nil {
		t.Fatalf("RecordStop: %v", err)
	}

	meta, err := st.FetchMetadata("RX-1")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta.Experiment.EndTime == nil {
		t.Fatal("EndTime still nil after stop")
	}
	if meta.Experiment.EndTime.Before(meta.Experiment.StartTime) {
		t.Errorf("EndTime %v before StartTime %v",
			meta.Experiment.EndTime, meta.Experiment.StartTime)
	}
}

func TestRecordStopUnknownExperimentIsNoOp(t *testing.T) {
	st, _ := newTestStore(t)

	if err := st.RecordStop("never-started"); err != nil {
		t.Fatalf("RecordStop on unknown exp_number: %v", err)
	}
}

func TestRecordSample(t *testing.T) {
	st, db := newTestStore(t)

	if err := st.RecordSetup(testSetup("RX-1")); err != nil {
		t.Fatalf("RecordSetup: %v", err)
	}

	sample := decoder.Sample{Temperature: floatPtr(25.3)}
	if err := st.RecordSample("RX-1", sample); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}

	var rows []models.SensorSample
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("query sensor_log: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("sensor_log rows = %d, want 1", len(rows))
	}

	row := rows[0]
	if row.ExpNumber != "RX-1" {
		t.Errorf("ExpNumber = %q, want RX-1", row.ExpNumber)
	}
	if row.Temperature == nil || *row.Temperature != 25.3 {
		t.Errorf("Temperature = %v, want 25.3", row.Temperature)
	}
	if row.Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}
	if row.UV1 != nil || row.Turbidity1 != nil || row.FlowRate != nil ||
		row.UVLedState != nil || row.Pump1State != nil {
		t.Errorf("unspecified channels stored non-NULL: %+v", row)
	}
}

func TestFetchMetadataMissing(t *testing.T) {
	st, _ := newTestStore(t)

	meta, err := st.FetchMetadata("RX-404")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta != nil {
		t.Fatalf("FetchMetadata = %+v, want nil for unknown exp_number", meta)
	}
}

func TestLatestSamplesNewestFirst(t *testing.T) {
	st, _ := newTestStore(t)

	if err := st.RecordSetup(testSetup("RX-1")); err != nil {
		t.Fatalf("RecordSetup: %v", err)
	}
	for _, temp := range []float64{20, 21, 22} {
		if err := st.RecordSample("RX-1", decoder.Sample{Temperature: floatPtr(temp)}); err != nil {
			t.Fatalf("RecordSample: %v", err)
		}
	}

	samples, err := st.LatestSamples(2)
	if err != nil {
		t.Fatalf("LatestSamples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if *samples[0].Temperature != 22 || *samples[1].Temperature != 21 {
		t.Errorf("order = %v, %v; want 22, 21",
			*samples[0].Temperature, *samples[1].Temperature)
	}
}

func TestStartTimeIsRecent(t *testing.T) {
	st, _ := newTestStore(t)

	before := time.Now().UTC().Add(-time.Minute)
	if err := st.RecordSetup(testSetup("RX-1")); err != nil {
		t.Fatalf("RecordSetup: %v", err)
	}
	meta, err := st.FetchMetadata("RX-1")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta.Experiment.StartTime.Before(before) {
		t.Errorf("StartTime = %v, want within the last minute", meta.Experiment.StartTime)
	}
}

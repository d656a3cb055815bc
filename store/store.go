// Package store is the persistence gateway: the only component that
// writes experiment, reagent and sensor rows.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/marionridgway/Project-Reactor/decoder"
	"github.com/marionridgway/Project-Reactor/models"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateExperiment reports a setup reusing an exp_number that
	// already identifies a stored run. The existing row is never
	// overwritten.
	ErrDuplicateExperiment = errors.New("duplicate experiment number")

	// ErrUnavailable reports a lost database connection. Sessions treat
	// it as fatal; every other store error is recovered per message.
	ErrUnavailable = errors.New("store unavailable")
)

// Store wraps the database handle behind the event-shaped operations
// of the ingestion protocol.
type Store struct {
	db *gorm.DB
}

// New creates a store on an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ExperimentMetadata pairs an experiment row with its reagent rows.
type ExperimentMetadata struct {
	Experiment models.Experiment
	Reagents   []models.Reagent
}

// RecordSetup inserts the experiment row and its reagent rows in one
// transaction. Reusing an exp_number rolls the whole insert back and
// returns ErrDuplicateExperiment.
func (s *Store) RecordSetup(setup decoder.Setup) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		experiment := models.Experiment{
			ExpNumber:   setup.ExpNumber,
			Operator:    setup.Operator,
			Description: setup.Description,
			StartTime:   time.Now().UTC(),
		}
		if err := tx.Create(&experiment).Error; err != nil {
			return err
		}

		for _, input := range setup.Reagents {
			reagent := models.Reagent{
				ExpNumber:     setup.ExpNumber,
				Name:          input.Name,
				Concentration: input.Concentration,
			}
			if err := tx.Create(&reagent).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %q", ErrDuplicateExperiment, setup.ExpNumber)
		}
		return s.classify("insert experiment", err)
	}
	return nil
}

// RecordStop stamps the experiment's end_time. An exp_number with no
// stored row is a no-op, not an error.
func (s *Store) RecordStop(expNumber string) error {
	err := s.db.Model(&models.Experiment{}).
		Where("exp_number = ?", expNumber).
		Update("end_time", time.Now().UTC()).Error
	if err != nil {
		return s.classify("stamp end_time", err)
	}
	return nil
}

// RecordSample appends one sensor_log row for the given experiment,
// timestamped at insert time.
func (s *Store) RecordSample(expNumber string, sample decoder.Sample) error {
	row := models.SensorSample{
		Timestamp:   time.Now().UTC(),
		ExpNumber:   expNumber,
		Temperature: sample.Temperature,
		UV1:         sample.UV1,
		Photodiode:  sample.Photodiode,
		Turbidity1:  sample.Turbidity1,
		Turbidity2:  sample.Turbidity2,
		RGB1R:       sample.RGB1R,
		RGB1G:       sample.RGB1G,
		RGB1B:       sample.RGB1B,
		RGB2R:       sample.RGB2R,
		RGB2G:       sample.RGB2G,
		RGB2B:       sample.RGB2B,
		UVLedState:  sample.UVLedState,
		UVIntensity: sample.UVIntensity,
		Pump1State:  sample.Pump1State,
		Pump2State:  sample.Pump2State,
		PumpSpeed:   sample.PumpSpeed,
		FlowRate:    sample.FlowRate,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return s.classify("insert sensor sample", err)
	}
	return nil
}

// FetchMetadata returns the experiment row plus its reagents, or
// (nil, nil) when the exp_number is unknown.
func (s *Store) FetchMetadata(expNumber string) (*ExperimentMetadata, error) {
	var experiment models.Experiment
	err := s.db.Where("exp_number = ?", expNumber).First(&experiment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify("fetch experiment", err)
	}

	var reagents []models.Reagent
	err = s.db.Where("exp_number = ?", expNumber).Order("id ASC").Find(&reagents).Error
	if err != nil {
		return nil, s.classify("fetch reagents", err)
	}

	return &ExperimentMetadata{Experiment: experiment, Reagents: reagents}, nil
}

// LatestSamples returns the newest sensor_log rows, newest first.
func (s *Store) LatestSamples(limit int) ([]models.SensorSample, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []models.SensorSample
	err := s.db.Order("id DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, s.classify("fetch sensor log", err)
	}
	return rows, nil
}

// classify decides whether an error is the fatal lost-connection class.
// The duplicate case is already handled by the caller; anything else is
// probed with a ping, and only a dead connection wraps ErrUnavailable.
func (s *Store) classify(op string, err error) error {
	sqlDB, dbErr := s.db.DB()
	if dbErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	if pingErr := sqlDB.Ping(); pingErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

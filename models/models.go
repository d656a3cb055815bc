package models

import (
	"time"
)

// Experiment is one logical reactor run, identified by the
// operator-supplied experiment number. EndTime stays NULL until the
// controller sends a stop.
type Experiment struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ExpNumber   string     `gorm:"column:exp_number;uniqueIndex;not null;size:255" json:"exp_number"`
	Operator    *string    `gorm:"column:operator;size:255" json:"operator"`
	Description *string    `gorm:"column:description" json:"description"`
	StartTime   time.Time  `gorm:"column:start_time;not null" json:"start_time"`
	EndTime     *time.Time `gorm:"column:end_time" json:"end_time"`
}

// TableName customizes the table name
func (Experiment) TableName() string {
	return "experiments"
}

// Reagent is one named chemical input of an experiment, inserted as a
// batch at setup time and never updated.
type Reagent struct {
	ID            uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	ExpNumber     string   `gorm:"column:exp_number;index;not null;size:255" json:"exp_number"`
	Name          string   `gorm:"column:reagent;not null;size:255" json:"reagent"`
	Concentration *float64 `gorm:"column:concentration" json:"concentration"`
}

// TableName customizes the table name
func (Reagent) TableName() string {
	return "reagents"
}

// SensorSample is one timestamped snapshot of the instrument channels,
// attributed to the experiment that was active when it arrived. Nil
// channels were absent from the message and persist as NULL.
type SensorSample struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp   time.Time `gorm:"column:timestamp;index;not null" json:"timestamp"`
	ExpNumber   string    `gorm:"column:exp_number;index;not null;size:255" json:"exp_number"`
	Temperature *float64  `gorm:"column:temperature" json:"temperature"`
	UV1         *float64  `gorm:"column:uv1" json:"uv1"`
	Photodiode  *float64  `gorm:"column:photodiode" json:"photodiode"`
	Turbidity1  *float64  `gorm:"column:turbidity1" json:"turbidity1"`
	Turbidity2  *float64  `gorm:"column:turbidity2" json:"turbidity2"`
	RGB1R       *int64    `gorm:"column:rgb1_r" json:"rgb1_r"`
	RGB1G       *int64    `gorm:"column:rgb1_g" json:"rgb1_g"`
	RGB1B       *int64    `gorm:"column:rgb1_b" json:"rgb1_b"`
	RGB2R       *int64    `gorm:"column:rgb2_r" json:"rgb2_r"`
	RGB2G       *int64    `gorm:"column:rgb2_g" json:"rgb2_g"`
	RGB2B       *int64    `gorm:"column:rgb2_b" json:"rgb2_b"`
	UVLedState  *int64    `gorm:"column:uv_led_state" json:"uv_led_state"`
	UVIntensity *int64    `gorm:"column:uv_intensity" json:"uv_intensity"`
	Pump1State  *int64    `gorm:"column:pump1_state" json:"pump1_state"`
	Pump2State  *int64    `gorm:"column:pump2_state" json:"pump2_state"`
	PumpSpeed   *float64  `gorm:"column:pump_speed" json:"pump_speed"`
	FlowRate    *float64  `gorm:"column:flow_rate" json:"flow_rate"`
}

// TableName customizes the table name
func (SensorSample) TableName() string {
	return "sensor_log"
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&Experiment{},
		&Reagent{},
		&SensorSample{},
	}
}

// Package config defines the structures that configure the drive, its path follower and the
// simulation around it.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/bhr3310/motioncore/components/drive"
	fakemotor "github.com/bhr3310/motioncore/components/motor/fake"
	"github.com/bhr3310/motioncore/control"
	"github.com/bhr3310/motioncore/trajectory"
)

// Config is the full configuration of a drive. Durations are seconds, distances inches.
type Config struct {
	LoopPeriod float64         `json:"loop_period_sec"`
	Drive      DriveConfig     `json:"drive"`
	Profile    ProfileConfig   `json:"profile"`
	Follower   FollowerConfig  `json:"follower"`
	Telemetry  TelemetryConfig `json:"telemetry"`
	Simulation SimConfig       `json:"simulation"`
}

// DriveConfig is the drivetrain geometry and output limits.
type DriveConfig struct {
	WheelDiameter    float64 `json:"wheel_diameter_in"`
	TrackWidth       float64 `json:"track_width_in"`
	TrackScrubFactor float64 `json:"track_scrub_factor"`
	// MaxSetpoint caps velocity setpoints in inches per second.
	MaxSetpoint      float64 `json:"max_setpoint_ips"`
	OpenLoopDeadband float64 `json:"open_loop_deadband"`
	NominalVoltage   float64 `json:"nominal_voltage"`
	HistoryCapacity  int     `json:"history_capacity,omitempty"`
	FaultLogInterval float64 `json:"fault_log_interval_sec"`
}

// ProfileConfig bounds the velocity profile of built trajectories.
type ProfileConfig struct {
	MaxVelocity                float64 `json:"max_velocity_ips"`
	MaxAcceleration            float64 `json:"max_acceleration_ips2"`
	MaxDeceleration            float64 `json:"max_deceleration_ips2,omitempty"`
	MaxCentripetalAcceleration float64 `json:"max_centripetal_acceleration_ips2,omitempty"`
	SampleStep                 float64 `json:"sample_step_in"`
}

// FollowerConfig selects and tunes the path follower.
type FollowerConfig struct {
	// Type is "time" or "pure_pursuit".
	Type string `json:"type"`

	Kp   float64 `json:"kp"`
	Ki   float64 `json:"ki"`
	Kd   float64 `json:"kd"`
	Kv   float64 `json:"kv"`
	Kffv float64 `json:"kffv"`
	Kffa float64 `json:"kffa"`

	KY      float64 `json:"ky"`
	KTheta  float64 `json:"ktheta"`
	KSettle float64 `json:"ksettle"`

	MotorKv float64 `json:"motor_kv"`
	MotorKa float64 `json:"motor_ka"`
	MotorKs float64 `json:"motor_ks"`

	GoalPosTolerance     float64 `json:"goal_pos_tolerance_in"`
	GoalVelTolerance     float64 `json:"goal_vel_tolerance_ips"`
	CompletionTolerance  float64 `json:"completion_tolerance_in"`
	StopSteeringDistance float64 `json:"stop_steering_distance_in"`

	MinLookahead      float64 `json:"min_lookahead_in"`
	MaxLookahead      float64 `json:"max_lookahead_in"`
	MinLookaheadSpeed float64 `json:"min_lookahead_speed_ips"`
	MaxLookaheadSpeed float64 `json:"max_lookahead_speed_ips"`
	MaxAcceleration   float64 `json:"max_acceleration_ips2"`
	MinPursuitSpeed   float64 `json:"min_pursuit_speed_ips"`
}

// TelemetryConfig says where drive frames go. Empty values disable a sink.
type TelemetryConfig struct {
	LogEvery         int    `json:"log_every,omitempty"`
	CSVPath          string `json:"csv_path,omitempty"`
	WebsocketAddress string `json:"websocket_address,omitempty"`
}

// SimConfig tunes the simulated motors and gyro.
type SimConfig struct {
	TimeConstant float64 `json:"time_constant_sec"`
	FreeSpeed    float64 `json:"free_speed_ips"`
	HoldGain     float64 `json:"hold_gain"`
	GyroBias     float64 `json:"gyro_bias_deg,omitempty"`
}

// Default returns the configuration of the 2018 robot.
func Default() Config {
	return Config{
		LoopPeriod: 0.01,
		Drive: DriveConfig{
			WheelDiameter:    5.8,
			TrackWidth:       23.92,
			TrackScrubFactor: 0.924,
			MaxSetpoint:      120,
			OpenLoopDeadband: 0.04,
			NominalVoltage:   12,
			FaultLogInterval: 1,
		},
		Profile: ProfileConfig{
			MaxVelocity:     150,
			MaxAcceleration: 90,
			SampleStep:      1,
		},
		Follower: FollowerConfig{
			Type:                 drive.FollowerTime,
			Kp:                   5,
			Ki:                   0.03,
			Kv:                   0.02,
			Kffv:                 1.2,
			Kffa:                 0.05,
			KY:                   0.005,
			KTheta:               3,
			KSettle:              2,
			MotorKv:              0.2,
			MotorKa:              0.01,
			MotorKs:              0.6,
			GoalPosTolerance:     0.75,
			GoalVelTolerance:     12,
			CompletionTolerance:  0.1,
			StopSteeringDistance: 9,
			MinLookahead:         12,
			MaxLookahead:         24,
			MinLookaheadSpeed:    9,
			MaxLookaheadSpeed:    120,
			MaxAcceleration:      90,
			MinPursuitSpeed:      2,
		},
		Telemetry: TelemetryConfig{LogEvery: 50},
		Simulation: SimConfig{
			TimeConstant: 0.05,
			FreeSpeed:    180,
			HoldGain:     2,
		},
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if !(c.LoopPeriod > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "loop_period_sec")
	}
	if err := c.Drive.Validate(fmt.Sprintf("%s.%s", path, "drive")); err != nil {
		return err
	}
	if err := c.Profile.Validate(fmt.Sprintf("%s.%s", path, "profile")); err != nil {
		return err
	}
	if err := c.Follower.Validate(fmt.Sprintf("%s.%s", path, "follower")); err != nil {
		return err
	}
	if c.Telemetry.LogEvery < 0 {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "telemetry"), errors.New("log_every cannot be negative"))
	}
	return c.Simulation.Validate(fmt.Sprintf("%s.%s", path, "simulation"))
}

// Validate ensures the drivetrain config is valid.
func (c *DriveConfig) Validate(path string) error {
	if !(c.WheelDiameter > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "wheel_diameter_in")
	}
	if !(c.TrackWidth > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "track_width_in")
	}
	if !(c.TrackScrubFactor > 0) || c.TrackScrubFactor > 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("track_scrub_factor must be in (0, 1], got %v", c.TrackScrubFactor))
	}
	if !(c.MaxSetpoint > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "max_setpoint_ips")
	}
	if c.OpenLoopDeadband < 0 || c.OpenLoopDeadband >= 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("open_loop_deadband must be in [0, 1), got %v", c.OpenLoopDeadband))
	}
	if !(c.NominalVoltage > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "nominal_voltage")
	}
	if c.HistoryCapacity < 0 {
		return utils.NewConfigValidationError(path, errors.New("history_capacity cannot be negative"))
	}
	return nil
}

// Validate ensures the profile limits are valid.
func (c *ProfileConfig) Validate(path string) error {
	if !(c.MaxVelocity > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "max_velocity_ips")
	}
	if !(c.MaxAcceleration > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "max_acceleration_ips2")
	}
	if c.MaxDeceleration < 0 || c.MaxCentripetalAcceleration < 0 {
		return utils.NewConfigValidationError(path, errors.New("deceleration and centripetal limits cannot be negative"))
	}
	if !(c.SampleStep > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "sample_step_in")
	}
	return nil
}

// Validate ensures the follower config is valid.
func (c *FollowerConfig) Validate(path string) error {
	switch c.Type {
	case drive.FollowerTime, drive.FollowerPurePursuit:
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	default:
		return utils.NewConfigValidationError(path,
			errors.Errorf("type must be %q or %q, got %q", drive.FollowerTime, drive.FollowerPurePursuit, c.Type))
	}
	if !(c.CompletionTolerance > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "completion_tolerance_in")
	}
	if c.GoalPosTolerance < 0 || c.GoalVelTolerance < 0 {
		return utils.NewConfigValidationError(path, errors.New("goal tolerances cannot be negative"))
	}
	if c.KSettle < 0 {
		return utils.NewConfigValidationError(path, errors.New("ksettle cannot be negative"))
	}
	if err := c.lookahead().Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// Validate ensures the simulation config is valid.
func (c *SimConfig) Validate(path string) error {
	if c.TimeConstant < 0 || c.FreeSpeed < 0 || c.HoldGain < 0 {
		return utils.NewConfigValidationError(path, errors.New("simulation constants cannot be negative"))
	}
	return nil
}

func (c *FollowerConfig) lookahead() control.Lookahead {
	return control.Lookahead{
		MinDistance: c.MinLookahead,
		MaxDistance: c.MaxLookahead,
		MinSpeed:    c.MinLookaheadSpeed,
		MaxSpeed:    c.MaxLookaheadSpeed,
	}
}

// Constraints returns the trajectory builder limits.
func (c *Config) Constraints() trajectory.Constraints {
	return trajectory.Constraints{
		MaxVelocity:                c.Profile.MaxVelocity,
		MaxAcceleration:            c.Profile.MaxAcceleration,
		MaxDeceleration:            c.Profile.MaxDeceleration,
		MaxCentripetalAcceleration: c.Profile.MaxCentripetalAcceleration,
		SampleStep:                 c.Profile.SampleStep,
	}
}

// FollowerParams returns the path follower parameters.
func (c *Config) FollowerParams() control.Params {
	f := c.Follower
	return control.Params{
		Kp:                   f.Kp,
		Ki:                   f.Ki,
		Kd:                   f.Kd,
		Kv:                   f.Kv,
		Kffv:                 f.Kffv,
		Kffa:                 f.Kffa,
		KY:                   f.KY,
		KTheta:               f.KTheta,
		KSettle:              f.KSettle,
		MotorKv:              f.MotorKv,
		MotorKa:              f.MotorKa,
		MotorKs:              f.MotorKs,
		GoalPosTolerance:     f.GoalPosTolerance,
		GoalVelTolerance:     f.GoalVelTolerance,
		CompletionTolerance:  f.CompletionTolerance,
		Lookahead:            f.lookahead(),
		MaxAcceleration:      f.MaxAcceleration,
		MinPursuitSpeed:      f.MinPursuitSpeed,
		StopSteeringDistance: f.StopSteeringDistance,
		LoopPeriod:           c.LoopPeriod,
	}
}

// DriveConfig returns the drive subsystem config.
func (c *Config) DriveConfig() drive.Config {
	return drive.Config{
		TrackWidth:       c.Drive.TrackWidth,
		WheelDiameter:    c.Drive.WheelDiameter,
		TrackScrubFactor: c.Drive.TrackScrubFactor,
		MaxSetpoint:      c.Drive.MaxSetpoint,
		OpenLoopDeadband: c.Drive.OpenLoopDeadband,
		NominalVoltage:   c.Drive.NominalVoltage,
		HistoryCapacity:  c.Drive.HistoryCapacity,
		PathFollower:     c.Follower.Type,
		Follower:         c.FollowerParams(),
		FaultLogInterval: time.Duration(c.Drive.FaultLogInterval * float64(time.Second)),
	}
}

// MotorConfig returns the simulated drivetrain config. The simulation uses the nominal geometry.
func (c *Config) MotorConfig() fakemotor.Config {
	return fakemotor.Config{
		TrackWidth:    c.Drive.TrackWidth,
		WheelDiameter: c.Drive.WheelDiameter,
		TimeConstant:  c.Simulation.TimeConstant,
		FreeSpeed:     c.Simulation.FreeSpeed,
		HoldGain:      c.Simulation.HoldGain,
	}
}

// LoopInterval is the control period as a duration.
func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.LoopPeriod * float64(time.Second))
}

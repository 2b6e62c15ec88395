// Package config loads the alarmd configuration file.
package config

import (
	"os"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-alarm/controller"
	"github.com/nvr-ai/go-alarm/kinematics"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/models/postprocess"
	"github.com/nvr-ai/go-alarm/tracking"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Detector backends.
const (
	BackendOpenCV      = "opencv"
	BackendONNXRuntime = "onnxruntime"
)

// Config is the alarmd configuration.
type Config struct {
	// DataDir holds the dated input and output frame directories.
	DataDir     string                   `yaml:"data_dir"`
	Database    string                   `yaml:"database"`
	Detector    Detector                 `yaml:"detector"`
	Calibration Calibration              `yaml:"calibration"`
	Congestion  Congestion               `yaml:"congestion"`
	Parking     controller.DwellConfig   `yaml:"parking"`
	Posture     controller.PostureConfig `yaml:"posture"`
	Judge       Judge                    `yaml:"judge"`
	Forwarding  Forwarding               `yaml:"forwarding"`
	Session     Session                  `yaml:"session"`
	Metrics     Metrics                  `yaml:"metrics"`
	Retention   Retention                `yaml:"retention"`
}

// Detector selects and tunes the inference backend.
type Detector struct {
	Backend     string `yaml:"backend"`
	ModelDir    string `yaml:"model_dir"`
	LibraryPath string `yaml:"library_path"`
	InputSize   int    `yaml:"input_size"`
	UseCUDA     bool   `yaml:"use_cuda"`
	// Threads bounds onnxruntime intra-op parallelism. Zero lets the runtime decide.
	Threads      int                   `yaml:"threads"`
	NMS          postprocess.NMSConfig `yaml:"nms"`
	Tracker      tracking.IoUConfig    `yaml:"tracker"`
	InferTimeout time.Duration         `yaml:"infer_timeout"`
}

// Calibration is the scene model of the speed estimator.
type Calibration struct {
	BasePPM float64 `yaml:"base_ppm"`
	Alpha   float64 `yaml:"alpha"`
	// VideoFPS is the nominal frame rate used by frame-count dwell.
	VideoFPS int `yaml:"video_fps"`
}

// Congestion tunes the congestion rule.
type Congestion struct {
	Threshold    int           `yaml:"threshold"`
	TimeWindow   time.Duration `yaml:"time_window"`
	AverageSpeed float64       `yaml:"average_speed"`
	History      int           `yaml:"history"`
	Classes      []int         `yaml:"classes"`
}

// Judge tunes the classname judgment.
type Judge struct {
	Fallback string `yaml:"fallback"`
}

// Forwarding configures the alarm webhook. An empty URL disables it.
type Forwarding struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Session tunes the polling loops.
type Session struct {
	CaptureTimeout     time.Duration `yaml:"capture_timeout"`
	TrackMaxAge        time.Duration `yaml:"track_max_age"`
	MaxCaptureFailures int           `yaml:"max_capture_failures"`
	// ReconcileInterval is how often enabled assignments without a running
	// session are started. Zero starts them once at boot only.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// Metrics configures the Prometheus endpoint. An empty Listen disables it.
type Metrics struct {
	Listen string `yaml:"listen"`
}

// Retention bounds how long frames and alarms are kept.
type Retention struct {
	Days          int           `yaml:"days"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Default returns the production profile.
func Default() Config {
	return Config{
		DataDir:  "data",
		Database: "data/alarm.db",
		Detector: Detector{
			Backend:      BackendOpenCV,
			ModelDir:     "weights",
			InputSize:    640,
			NMS:          postprocess.DefaultNMSConfig(),
			Tracker:      tracking.DefaultIoUConfig(),
			InferTimeout: 30 * time.Second,
		},
		Calibration: Calibration{BasePPM: 0.5, Alpha: 0.6, VideoFPS: 30},
		Congestion: Congestion{
			Threshold:    20,
			TimeWindow:   30 * time.Second,
			AverageSpeed: 15,
			History:      20,
			Classes:      controller.DefaultCongestionConfig().Classes,
		},
		Parking:    controller.DefaultDwellConfig(),
		Posture:    controller.DefaultPostureConfig(),
		Judge:      Judge{Fallback: string(models.FallbackAnyLabel)},
		Forwarding: Forwarding{Timeout: 10 * time.Second},
		Session: Session{
			CaptureTimeout:     10 * time.Second,
			TrackMaxAge:        5 * time.Minute,
			MaxCaptureFailures: 3,
			ReconcileInterval:  time.Minute,
		},
		Retention: Retention{Days: 1, SweepInterval: 24 * time.Hour},
	}
}

// Load reads path and fills unset fields from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML, merges defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	// Decoding onto the defaults keeps absent keys and honours explicit zeros.
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Override copies every non-zero field of o onto c. Zero fields in o leave c
// untouched.
func (c *Config) Override(o Config) error {
	return errors.Wrap(mergo.Merge(c, o, mergo.WithOverride), "apply overrides")
}

// Validate checks the values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.Wrap(ErrInvalid, "data_dir is empty")
	case c.Database == "":
		return errors.Wrap(ErrInvalid, "database is empty")
	case c.Detector.Backend != BackendOpenCV && c.Detector.Backend != BackendONNXRuntime:
		return errors.Wrapf(ErrInvalid, "detector.backend %q", c.Detector.Backend)
	case c.Detector.InputSize%32 != 0:
		return errors.Wrapf(ErrInvalid, "detector.input_size %d is not a multiple of 32", c.Detector.InputSize)
	case c.Calibration.BasePPM <= 0:
		return errors.Wrapf(ErrInvalid, "calibration.base_ppm %v", c.Calibration.BasePPM)
	case c.Calibration.VideoFPS <= 0:
		return errors.Wrapf(ErrInvalid, "calibration.video_fps %d", c.Calibration.VideoFPS)
	case c.Congestion.Threshold <= 0:
		return errors.Wrapf(ErrInvalid, "congestion.threshold %d", c.Congestion.Threshold)
	case c.Congestion.TimeWindow <= 0:
		return errors.Wrapf(ErrInvalid, "congestion.time_window %v", c.Congestion.TimeWindow)
	case c.Posture.Ratio <= 0 || c.Posture.Ratio >= 1:
		return errors.Wrapf(ErrInvalid, "posture.ratio %v", c.Posture.Ratio)
	case c.Posture.MinKeypointConfidence < 0 || c.Posture.MinKeypointConfidence > 1:
		return errors.Wrapf(ErrInvalid, "posture.min_keypoint_confidence %v", c.Posture.MinKeypointConfidence)
	case c.Retention.Days < 0:
		return errors.Wrapf(ErrInvalid, "retention.days %d", c.Retention.Days)
	}
	if _, err := models.ParseFallback(c.Judge.Fallback); err != nil {
		return errors.Wrapf(ErrInvalid, "judge.fallback: %v", err)
	}
	return nil
}

// Rules returns the rule tunables.
func (c *Config) Rules() controller.RuleConfig {
	fallback, _ := models.ParseFallback(c.Judge.Fallback)
	return controller.RuleConfig{
		Dwell: c.Parking,
		Congestion: controller.CongestionConfig{
			Threshold:    c.Congestion.Threshold,
			Window:       c.Congestion.TimeWindow,
			AverageSpeed: c.Congestion.AverageSpeed,
			History:      c.Congestion.History,
			Classes:      c.Congestion.Classes,
			Calibration:  kinematics.Calibration{BasePPM: c.Calibration.BasePPM, Alpha: c.Calibration.Alpha},
		},
		Posture:  c.Posture,
		Fallback: fallback,
	}
}

// Tracking returns the track store configuration.
func (c *Config) Tracking() tracking.Config {
	cfg := tracking.DefaultConfig()
	cfg.NominalFPS = c.Calibration.VideoFPS
	return cfg
}

package controller

import (
	"fmt"
	"slices"
	"time"

	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/kinematics"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/snapshot"
	"github.com/nvr-ai/go-alarm/tracking"
)

// LabelCongestion is the label of congestion alarms.
const LabelCongestion = "traffic congestion"

// CongestionConfig configures the congestion rule.
type CongestionConfig struct {
	// Threshold is the minimum flow within one window.
	Threshold int `yaml:"threshold"`
	// Window is the wall-clock length of one counting window.
	Window time.Duration `yaml:"time_window"`
	// AverageSpeed is the km/h below which traffic counts as congested.
	AverageSpeed float64 `yaml:"average_speed"`
	// History bounds the per-window list of smoothed track speeds.
	History     int                    `yaml:"history"`
	Classes     []int                  `yaml:"classes"`
	Calibration kinematics.Calibration `yaml:"calibration"`
}

// DefaultCongestionConfig returns the traffic defaults.
func DefaultCongestionConfig() CongestionConfig {
	return CongestionConfig{
		Threshold:    20,
		Window:       30 * time.Second,
		AverageSpeed: 15,
		History:      20,
		Classes:      []int{models.ClassCar, models.ClassBus, models.ClassTruck},
		Calibration:  kinematics.DefaultCalibration(),
	}
}

// CongestionRule counts qualifying vehicle detections over a wall-clock
// window. At the end of each window it alarms when the flow reached the
// threshold and the mean of the smoothed track speeds stayed below the speed
// threshold. Both accumulators restart with every window.
type CongestionRule struct {
	cfg      CongestionConfig
	started  time.Time
	flow     int
	averages *tracking.Ring[int]
}

// NewCongestionRule creates a congestion rule. Zero fields take defaults.
func NewCongestionRule(cfg CongestionConfig) *CongestionRule {
	def := DefaultCongestionConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.History <= 0 {
		cfg.History = def.History
	}
	if cfg.Classes == nil {
		cfg.Classes = def.Classes
	}
	if cfg.Calibration == (kinematics.Calibration{}) {
		cfg.Calibration = def.Calibration
	}
	return &CongestionRule{cfg: cfg, averages: tracking.NewRing[int](cfg.History)}
}

// Name implements Rule.
func (r *CongestionRule) Name() string { return "congestion" }

// Accept implements Rule.
func (r *CongestionRule) Accept(d detector.Detection) bool {
	return slices.Contains(r.cfg.Classes, d.ClassID)
}

// Flow returns the number of qualifying detections in the current window.
func (r *CongestionRule) Flow() int { return r.flow }

// Evaluate implements Rule.
func (r *CongestionRule) Evaluate(now time.Time, frame detector.Frame, obs []Observation) Decision {
	if r.started.IsZero() {
		r.started = now
	}

	var dec Decision
	for _, o := range obs {
		r.flow++
		a := snapshot.Annotation{Box: o.Box, Caption: o.ClassName}
		if speed, ok := r.observeSpeed(o); ok {
			r.averages.Push(speed)
			a.Caption = fmt.Sprintf("%s %d km/h", o.ClassName, speed)
		}
		dec.Annotations = append(dec.Annotations, a)
	}

	if now.Sub(r.started) < r.cfg.Window {
		return Decision{}
	}

	mean := kinematics.Mean(r.averages.Values())
	dec.Fire = r.flow >= r.cfg.Threshold && r.averages.Len() > 0 && mean < r.cfg.AverageSpeed
	klog.V(4).InfoS("Congestion window closed", "flow", r.flow, "meanSpeed", mean, "fire", dec.Fire)

	r.flow = 0
	r.averages.Reset()
	r.started = now

	if !dec.Fire {
		return Decision{}
	}
	dec.Labels = []string{LabelCongestion}
	for i := range dec.Annotations {
		dec.Annotations[i].Alert = true
	}
	return dec
}

// observeSpeed estimates the track's latest speed and returns its smoothed value.
func (r *CongestionRule) observeSpeed(o Observation) (int, bool) {
	if o.Track == nil {
		return 0, false
	}
	prev, ok := o.Track.Previous()
	if !ok {
		return 0, false
	}
	last, _ := o.Track.Positions.Last()
	speed, err := r.cfg.Calibration.EstimateSpeed(prev.Position, last.Position, last.At.Sub(prev.At))
	if err != nil {
		klog.V(4).InfoS("Skipping speed sample", "track", o.TrackID, "err", err)
		return 0, false
	}
	o.Track.Speeds.Push(speed)
	return kinematics.Smooth(o.Track.Speeds.Values()), true
}

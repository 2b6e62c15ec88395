package controller

import (
	"fmt"
	"slices"
	"time"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/snapshot"
)

// LabelParking is the label of dwell alarms.
const LabelParking = "illegal parking"

// DwellConfig configures the dwell rule.
type DwellConfig struct {
	// MinStay is the dwell a track must exceed before it alarms.
	MinStay time.Duration `yaml:"min_stay_time"`
	// CountFrames measures dwell by qualifying frames at the nominal frame
	// rate instead of wall-clock time between sightings.
	CountFrames bool `yaml:"count_frames"`
	// Classes lists the class ids that can dwell.
	Classes []int `yaml:"classes"`
}

// DefaultDwellConfig returns the parking defaults.
func DefaultDwellConfig() DwellConfig {
	return DwellConfig{
		MinStay: 3 * time.Second,
		Classes: []int{models.ClassPerson, models.ClassCar, models.ClassTruck},
	}
}

// DwellRule alarms once per track when a stationary-class object stays
// inside the region longer than the minimum stay.
type DwellRule struct {
	cfg DwellConfig
}

// NewDwellRule creates a dwell rule.
func NewDwellRule(cfg DwellConfig) *DwellRule {
	if cfg.Classes == nil {
		cfg.Classes = DefaultDwellConfig().Classes
	}
	return &DwellRule{cfg: cfg}
}

// Name implements Rule.
func (r *DwellRule) Name() string { return "dwell" }

// Accept implements Rule.
func (r *DwellRule) Accept(d detector.Detection) bool {
	return slices.Contains(r.cfg.Classes, d.ClassID)
}

// Evaluate implements Rule. Untracked observations never dwell.
func (r *DwellRule) Evaluate(now time.Time, frame detector.Frame, obs []Observation) Decision {
	var dec Decision
	for _, o := range obs {
		if o.Track == nil {
			continue
		}
		dwell := r.dwell(o)
		a := snapshot.Annotation{Box: o.Box}
		if !o.Track.Alarmed && dwell > r.cfg.MinStay {
			o.Track.Alarmed = true
			dec.Fire = true
			a.Alert = true
			a.Caption = fmt.Sprintf("parking time: %d s", int(dwell.Seconds()))
		}
		dec.Annotations = append(dec.Annotations, a)
	}
	if dec.Fire {
		dec.Labels = []string{LabelParking}
	}
	return dec
}

func (r *DwellRule) dwell(o Observation) time.Duration {
	if r.cfg.CountFrames {
		return time.Duration(o.Track.DwellSeconds) * time.Second
	}
	return o.Track.Dwell()
}

// Package alarm records alarm events and forwards them to an external webhook.
package alarm

import (
	"time"

	"github.com/google/uuid"
)

// Event is one positive decision of an analysis session. It is not modified
// after creation.
type Event struct {
	ID            uuid.UUID
	AlgorithmID   int64
	CameraID      int64
	AlgorithmName string
	// AlarmName is the operator-facing name forwarded to the webhook.
	AlarmName  string
	Labels     []string
	InputPath  string
	OutputPath string
	Timestamp  time.Time
}

// NewEvent stamps a new event with a random id.
func NewEvent(algorithmID, cameraID int64, labels []string, inputPath, outputPath string, ts time.Time) Event {
	return Event{
		ID:          uuid.New(),
		AlgorithmID: algorithmID,
		CameraID:    cameraID,
		Labels:      append([]string(nil), labels...),
		InputPath:   inputPath,
		OutputPath:  outputPath,
		Timestamp:   ts,
	}
}

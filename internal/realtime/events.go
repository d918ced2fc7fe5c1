package realtime

import "github.com/synthara/forge-api/internal/models"

// JobProgress is the payload pushed on every generation stage transition.
type JobProgress struct {
	JobID        string           `json:"jobId"`
	UserID       string           `json:"userId,omitempty"`
	Status       models.JobStatus `json:"status"`
	Progress     int              `json:"progress"`
	CurrentStep  string           `json:"currentStep"`
	ResultURL    string           `json:"resultUrl,omitempty"`
	QualityScore int              `json:"qualityScore,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
}

// BondingEvent is the payload pushed on the bonding:<datasetId> channel for
// every persisted chain-state change.
type BondingEvent struct {
	Type models.TradeType `json:"type"`
	Data interface{}      `json:"data"`
}

// Envelope is the wire format for every server-to-client message.
type Envelope struct {
	Event   string      `json:"event"`
	Channel string      `json:"channel,omitempty"`
	Data    interface{} `json:"data"`
}

package domain

import (
	"strconv"
	"time"

	"github.com/couchcryptid/raintree-service/internal/tree"
)

// Source tells where the feature vector of a prediction came from.
type Source string

const (
	SourceForm     Source = "form"
	SourceForecast Source = "forecast"
)

// PredictionEvent is the record of one accepted prediction, serialized as
// JSON for downstream consumers.
type PredictionEvent struct {
	Generation  uint64             `json:"generation"`
	Label       tree.Label         `json:"label"`
	LabelName   string             `json:"label_name"`
	Path        []tree.NodeID      `json:"path"`
	Features    tree.FeatureVector `json:"features"`
	Source      Source             `json:"source"`
	Date        string             `json:"date,omitempty"`
	PredictedAt time.Time          `json:"predicted_at"`
}

// NewPredictionEvent stamps a classification result with the current time.
// date is empty for form predictions.
func NewPredictionEvent(res tree.Result, features tree.FeatureVector, source Source, date string) PredictionEvent {
	return PredictionEvent{
		Generation:  res.Path.Generation,
		Label:       res.Label,
		LabelName:   ClassName(res.Label),
		Path:        append([]tree.NodeID(nil), res.Path.IDs...),
		Features:    features,
		Source:      source,
		Date:        date,
		PredictedAt: clock.Now().UTC(),
	}
}

// Key returns the message key used when publishing the event. Events of
// one tree generation share a key so they stay ordered.
func (e PredictionEvent) Key() []byte {
	return []byte("gen-" + strconv.FormatUint(e.Generation, 10))
}

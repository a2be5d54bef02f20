package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/couchcryptid/raintree-service/internal/tree"
)

// DateLayout is the calendar-day format used by the forecast source.
const DateLayout = "2006-01-02"

// ErrDateUnavailable means the forecast source has no data for the
// requested day.
var ErrDateUnavailable = errors.New("date not available in forecast")

// FetchError reports a failed forecast lookup. It is a prediction-time
// error: it ends one prediction and never touches the loaded tree.
type FetchError struct {
	Date   string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	msg := "fetch forecast"
	if e.Date != "" {
		msg += " for " + e.Date
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Forecaster produces the feature vector for one calendar day.
type Forecaster interface {
	Forecast(ctx context.Context, date time.Time) (tree.FeatureVector, error)
}

// ParseDate parses a YYYY-MM-DD day. Invalid input is a *FetchError so
// callers can treat it like any other unavailable date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &FetchError{Date: s, Reason: "date must be YYYY-MM-DD", Err: err}
	}
	return d, nil
}

// FormatDate renders d as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// DailyForecast holds one day of forecast values. Nil fields were not
// reported by the source.
type DailyForecast struct {
	Date         string
	TMax         *float64
	TMin         *float64
	WindSpeedMax *float64
	HumidityMax  *float64
}

// Features converts the day into a feature vector. Unreported values are
// left out; tavg is derived only when both temperature bounds are known.
func (d DailyForecast) Features() tree.FeatureVector {
	fv := tree.FeatureVector{}
	set := func(name string, v *float64) {
		if v != nil {
			fv[name] = *v
		}
	}
	set(FeatureTMax, d.TMax)
	set(FeatureTMin, d.TMin)
	set(FeatureWind, d.WindSpeedMax)
	set(FeatureHumidity, d.HumidityMax)
	if d.TMin != nil && d.TMax != nil {
		fv[FeatureTAvg] = (*d.TMin + *d.TMax) / 2
	}
	return fv
}

// DateRangeError builds the FetchError for a day outside the forecast window.
func DateRangeError(date string) error {
	return &FetchError{Date: date, Err: ErrDateUnavailable}
}

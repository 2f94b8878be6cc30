package models

import "time"

// MetricTimeLayout is the layout used for MetricPoint.Time, a 24 hour clock with seconds.
const MetricTimeLayout = "15:04:05"

// MetricPoint is one sample of the simulated fleet telemetry.
type MetricPoint struct {
	Time      string    `json:"time"`
	Timestamp time.Time `json:"timestamp"`
	Load      int       `json:"load"`
	Tokens    int       `json:"tokens"`
}

// NewMetricPoint builds a MetricPoint stamped at t.
func NewMetricPoint(t time.Time, load, tokens int) MetricPoint {
	return MetricPoint{
		Time:      t.Format(MetricTimeLayout),
		Timestamp: t,
		Load:      load,
		Tokens:    tokens,
	}
}

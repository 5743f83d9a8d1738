package etl

import (
	"fmt"
	"time"
)

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthFailing  HealthStatus = "failing"
)

type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type Alert struct {
	Table   string     `json:"table"`
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
}

// HealthThresholds tune Assess. Zero values take the defaults.
type HealthThresholds struct {
	// MaxSkipRatio is the share of fetched rows that may be skipped during
	// decoding before a warning is raised.
	MaxSkipRatio float64
}

const DefaultMaxSkipRatio = 0.05

// HealthReport is the assessment of a single job.
type HealthReport struct {
	Status       HealthStatus `json:"status"`
	Alerts       []Alert      `json:"alerts,omitempty"`
	FailedTables []string     `json:"failedTables,omitempty"`
	CheckedAt    time.Time    `json:"checkedAt"`
}

// Assess derives a HealthReport from a job summary. A job is failing when no
// table completed, degraded when any alert was raised.
func Assess(summary *JobSummary, th HealthThresholds) HealthReport {
	if th.MaxSkipRatio <= 0 {
		th.MaxSkipRatio = DefaultMaxSkipRatio
	}
	report := HealthReport{Status: HealthHealthy, CheckedAt: time.Now().UTC()}
	if summary == nil {
		report.Status = HealthFailing
		report.Alerts = append(report.Alerts, Alert{Level: AlertCritical, Message: "no job summary"})
		return report
	}

	completed := 0
	for _, r := range summary.Results {
		switch {
		case r.State == StateFailed:
			report.FailedTables = append(report.FailedTables, r.Table)
			msg := "table sync failed"
			if len(r.Errors) > 0 {
				msg = r.Errors[len(r.Errors)-1]
			}
			report.Alerts = append(report.Alerts, Alert{Table: r.Table, Level: AlertCritical, Message: msg})
			continue
		case r.State == StateCompleted:
			completed++
		}

		if r.RecordsFailed > 0 {
			report.Alerts = append(report.Alerts, Alert{
				Table:   r.Table,
				Level:   AlertWarning,
				Message: fmt.Sprintf("%d record(s) failed to import", r.RecordsFailed),
			})
		}
		if r.RecordsFetched > 0 {
			ratio := float64(r.RecordsSkipped) / float64(r.RecordsFetched)
			if ratio > th.MaxSkipRatio {
				report.Alerts = append(report.Alerts, Alert{
					Table:   r.Table,
					Level:   AlertWarning,
					Message: fmt.Sprintf("%.1f%% of rows skipped during decoding (%d of %d)", ratio*100, r.RecordsSkipped, r.RecordsFetched),
				})
			}
		}
	}

	switch {
	case completed == 0:
		report.Status = HealthFailing
	case len(report.Alerts) > 0:
		report.Status = HealthDegraded
	}
	return report
}

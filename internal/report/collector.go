package report

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/beacon/internal/triage"
)

// collectTimeout bounds the snapshot taken on each scrape.
const collectTimeout = 5 * time.Second

// Collector exposes stored alert counts as gauges, computed from a fresh
// snapshot on every scrape.
type Collector struct {
	reporter *Reporter
	logger   log.Logger

	stored     *prometheus.Desc
	byStatus   *prometheus.Desc
	bySeverity *prometheus.Desc
	byKind     *prometheus.Desc
	scrapeErr  *prometheus.Desc
}

// NewCollector returns a prometheus.Collector backed by the reporter.
func NewCollector(r *Reporter, logger log.Logger) *Collector {
	if logger == nil {
		logger = log.Nop()
	}
	return &Collector{
		reporter: r,
		logger:   logger,
		stored: prometheus.NewDesc("beacon_alerts_stored",
			"Number of alerts currently held by the store.", nil, nil),
		byStatus: prometheus.NewDesc("beacon_alerts_by_status",
			"Number of stored alerts by lifecycle status.", []string{"status"}, nil),
		bySeverity: prometheus.NewDesc("beacon_alerts_by_severity",
			"Number of stored alerts by severity.", []string{"severity"}, nil),
		byKind: prometheus.NewDesc("beacon_alerts_by_kind",
			"Number of stored alerts by kind.", []string{"kind"}, nil),
		scrapeErr: prometheus.NewDesc("beacon_alerts_scrape_error",
			"1 if the last alert snapshot failed, 0 otherwise.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stored
	ch <- c.byStatus
	ch <- c.bySeverity
	ch <- c.byKind
	ch <- c.scrapeErr
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	s, err := c.reporter.Summary(ctx)
	if err != nil {
		c.logger.Error(ctx, err, "alert snapshot for metrics failed")
		ch <- prometheus.MustNewConstMetric(c.scrapeErr, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErr, prometheus.GaugeValue, 0)
	ch <- prometheus.MustNewConstMetric(c.stored, prometheus.GaugeValue, float64(s.Total))

	for _, st := range triage.Statuses {
		ch <- prometheus.MustNewConstMetric(c.byStatus, prometheus.GaugeValue, float64(s.ByStatus[st]), string(st))
	}
	for _, sev := range triage.Severities {
		ch <- prometheus.MustNewConstMetric(c.bySeverity, prometheus.GaugeValue, float64(s.BySeverity[sev]), sev.String())
	}
	for _, k := range triage.Kinds {
		ch <- prometheus.MustNewConstMetric(c.byKind, prometheus.GaugeValue, float64(s.ByKind[k]), string(k))
	}
}

package sink

import (
	"context"
	"errors"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/wesleyorama2/httpmetrics/internal/config"
	"github.com/wesleyorama2/httpmetrics/internal/metrics"
)

// InfluxType names the InfluxDB sink in errors and logs
const InfluxType = "influxdb"

// Influx writes one point per sample to an InfluxDB 2.x bucket.
//
// Response codes are written as the response_code tag rather than a field,
// which adds one series per distinct status code.
type Influx struct {
	client      influxdb2.Client
	writer      api.WriteAPIBlocking
	measurement string
	now         func() time.Time
}

// NewInflux creates an InfluxDB sink from cfg.
func NewInflux(cfg config.SinkConfig) (*Influx, error) {
	if cfg.URL == "" {
		return nil, errors.New("influxdb url is required")
	}
	if cfg.Bucket == "" || cfg.Org == "" {
		return nil, errors.New("influxdb org and bucket are required")
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = config.DefaultMeasurement
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
		now:         time.Now,
	}, nil
}

// Export writes sample as a single point stamped with the current UTC time.
func (s *Influx) Export(ctx context.Context, sample metrics.Sample, tags Tags) error {
	if err := s.writer.WritePoint(ctx, s.point(sample, tags)); err != nil {
		return &Error{Sink: InfluxType, Err: err}
	}
	return nil
}

func (s *Influx) point(sample metrics.Sample, tags Tags) *write.Point {
	pointTags := map[string]string{
		"url":           tags.URL,
		"response_code": strconv.Itoa(sample.ResponseCode),
	}
	if tags.Location != "" {
		pointTags["location"] = tags.Location
	}

	fields := map[string]interface{}{
		"data_received_kb": sample.DataReceivedKB,
	}
	for i, d := range sample.Phases() {
		fields[metrics.PhaseNames[i]] = d.Seconds()
	}

	return influxdb2.NewPoint(s.measurement, pointTags, fields, s.now().UTC())
}

// Close releases the client's idle connections
func (s *Influx) Close() error {
	s.client.Close()
	return nil
}

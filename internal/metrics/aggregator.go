package metrics

import (
	"errors"
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// ErrEmptyAggregate is returned by Average when no sample has been folded.
var ErrEmptyAggregate = errors.New("no samples collected")

// Histogram bounds in microseconds: 1µs to 1 hour, 3 significant figures.
const (
	histogramMin     int64 = 1
	histogramMax     int64 = 3600000000
	histogramSigFigs       = 3
)

// Average is the per-field mean over every sample folded into an Aggregator.
type Average struct {
	DNSResolution  time.Duration
	Connection     time.Duration
	AppConnect     time.Duration
	PreTransfer    time.Duration
	TTFB           time.Duration
	Total          time.Duration
	DataReceivedKB float64
	ResponseCode   float64

	// Count is the number of samples the average was computed over
	Count int

	// RequestTime is the sum of the total request time of all samples
	RequestTime time.Duration

	// Distribution of the total request time
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// Aggregator keeps running sums over a bounded series of samples.
//
// Sums of durations are kept in integer nanoseconds so folding never loses
// precision; division only happens in Average. An Aggregator belongs to a
// single run and is not safe for concurrent use.
type Aggregator struct {
	count int

	dns         time.Duration
	connection  time.Duration
	appConnect  time.Duration
	preTransfer time.Duration
	ttfb        time.Duration
	total       time.Duration
	kb          float64
	codes       int

	totalHist *hdrhistogram.Histogram
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		totalHist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
}

// Fold adds every field of s to the running sums.
func (a *Aggregator) Fold(s Sample) {
	a.count++
	a.dns += s.DNSResolution
	a.connection += s.Connection
	a.appConnect += s.AppConnect
	a.preTransfer += s.PreTransfer
	a.ttfb += s.TTFB
	a.total += s.Total
	a.kb += s.DataReceivedKB
	a.codes += s.ResponseCode

	micros := s.Total.Microseconds()
	if micros < histogramMin {
		micros = histogramMin
	}
	if micros > histogramMax {
		micros = histogramMax
	}
	// Values are clamped to the histogram range, so recording cannot fail.
	_ = a.totalHist.RecordValue(micros)
}

// Count returns the number of folded samples.
func (a *Aggregator) Count() int {
	return a.count
}

// Average returns the mean of every field, or ErrEmptyAggregate when
// nothing has been folded.
func (a *Aggregator) Average() (Average, error) {
	if a.count == 0 {
		return Average{}, ErrEmptyAggregate
	}

	n := float64(a.count)
	return Average{
		DNSResolution:  divide(a.dns, n),
		Connection:     divide(a.connection, n),
		AppConnect:     divide(a.appConnect, n),
		PreTransfer:    divide(a.preTransfer, n),
		TTFB:           divide(a.ttfb, n),
		Total:          divide(a.total, n),
		DataReceivedKB: a.kb / n,
		ResponseCode:   float64(a.codes) / n,
		Count:          a.count,
		RequestTime:    a.total,
		Min:            micros(a.totalHist.Min()),
		Max:            micros(a.totalHist.Max()),
		P50:            micros(a.totalHist.ValueAtQuantile(50)),
		P95:            micros(a.totalHist.ValueAtQuantile(95)),
		P99:            micros(a.totalHist.ValueAtQuantile(99)),
	}, nil
}

func divide(sum time.Duration, n float64) time.Duration {
	return time.Duration(math.Round(float64(sum) / n))
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

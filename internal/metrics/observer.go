// Package metrics records upload and listing telemetry.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for photo operations.
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes int64, err error)
	RecordList(duration time.Duration, items int, err error)
}

// PrometheusObserver exports photo metrics to Prometheus.
type PrometheusObserver struct {
	duration     *prometheus.HistogramVec
	failures     *prometheus.CounterVec
	uploadBytes  prometheus.Counter
	listedPhotos prometheus.Histogram
}

// NewPrometheusObserver registers the photo metrics on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "famille_photos"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of photo upload and list operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed photo operations.",
		}, []string{"operation"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes successfully stored in the object store.",
		}),
		listedPhotos: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listed_photos",
			Help:      "Number of photos returned per listing.",
			Buckets:   []float64{0, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}

	var err error
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	if o.failures, err = register(reg, o.failures); err != nil {
		return nil, err
	}
	if o.uploadBytes, err = register(reg, o.uploadBytes); err != nil {
		return nil, err
	}
	if o.listedPhotos, err = register(reg, o.listedPhotos); err != nil {
		return nil, err
	}
	return o, nil
}

// register adds c to reg, reusing the collector already registered under the
// same descriptor so several observers can share one registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register photo metric: %w", err)
	}
	return c, nil
}

// RecordUpload tracks upload duration, size and failures.
func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues("upload").Observe(duration.Seconds())
	if err != nil {
		o.failures.WithLabelValues("upload").Inc()
		return
	}
	o.uploadBytes.Add(float64(sizeBytes))
}

// RecordList tracks listing duration, result size and failures.
func (o *PrometheusObserver) RecordList(duration time.Duration, items int, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues("list").Observe(duration.Seconds())
	if err != nil {
		o.failures.WithLabelValues("list").Inc()
		return
	}
	o.listedPhotos.Observe(float64(items))
}

type nopObserver struct{}

func (nopObserver) RecordUpload(time.Duration, int64, error) {}

func (nopObserver) RecordList(time.Duration, int, error) {}

// Nop returns an Observer that records nothing.
func Nop() Observer {
	return nopObserver{}
}

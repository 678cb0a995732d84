// Package metrics exposes the latest sensor values and MQTT publish
// outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish result label values.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

var (
	// CO2 is the most recent CO2 concentration in ppm.
	CO2 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airctrl_co2_ppm",
		Help: "Most recent CO2 concentration reported by the sensor.",
	})

	// Temperature is the most recent temperature in degrees Celsius.
	Temperature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airctrl_temperature_celsius",
		Help: "Most recent temperature reported by the sensor.",
	})

	// Humidity is the most recent relative humidity in percent.
	Humidity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airctrl_humidity_percent",
		Help: "Most recent relative humidity reported by the sensor.",
	})

	// Connected is 1 while the broker session is up.
	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airctrl_mqtt_connected",
		Help: "Whether the MQTT broker session is currently connected.",
	})

	// PublishTotal counts publish attempts by message kind and result.
	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airctrl_mqtt_publish_total",
		Help: "MQTT publishes by kind (reading, discovery) and result (ok, failed, dropped).",
	},
		[]string{"kind", "result"},
	)
)

// ObserveReading records one sensor reading.
func ObserveReading(co2 uint16, temperature, humidity float64) {
	CO2.Set(float64(co2))
	Temperature.Set(temperature)
	Humidity.Set(humidity)
}

// ObservePublish counts a publish of the given kind. A nil err is a
// success.
func ObservePublish(kind string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	PublishTotal.WithLabelValues(kind, result).Inc()
}

// ObserveDropped counts a message of the given kind that was dropped
// before reaching the broker.
func ObserveDropped(kind string) {
	PublishTotal.WithLabelValues(kind, ResultDropped).Inc()
}

// SetConnected records the broker session state.
func SetConnected(up bool) {
	if up {
		Connected.Set(1)
		return
	}
	Connected.Set(0)
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

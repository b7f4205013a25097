// Package acquire runs camera acquisition sessions in the background.
// A Session owns one acquisition stream, pumps it from a dedicated
// goroutine, and hands each frame to a FrameSink with its global
// sequence number.
package acquire

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tiagocoutinho/hamamatsu/dcam"
)

var (
	framesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hamamatsu",
		Subsystem: "acquire",
		Name:      "frames_delivered_total",
		Help:      "Frames handed to a sink across all sessions.",
	})
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hamamatsu",
		Subsystem: "acquire",
		Name:      "sessions_started_total",
		Help:      "Acquisition sessions started.",
	})
	sessionsAborted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hamamatsu",
		Subsystem: "acquire",
		Name:      "sessions_aborted_total",
		Help:      "Acquisition sessions ended by Stop before completion.",
	})
	sessionsFaulted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hamamatsu",
		Subsystem: "acquire",
		Name:      "sessions_faulted_total",
		Help:      "Acquisition sessions ended by a device fault.",
	})
)

// OpenDevice opens the camera at index, retrying with exponential
// backoff while the library reports it busy.  Cameras are exclusive-
// access devices and a previous owner may still be letting go.
func OpenDevice(reg *dcam.Registry, index int) (*dcam.Device, error) {
	dev, err := reg.Device(index)
	if err != nil {
		return nil, err
	}
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Clock:               backoff.SystemClock,
	}
	bo.Reset()
	err = backoff.Retry(func() error {
		err := dev.Open()
		if err == nil || dcam.IsBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, bo)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

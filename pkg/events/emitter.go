package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config contains configuration for the Emitter.
type Config struct {
	// BufferSize is the bounded queue size. Default: 1000.
	BufferSize int

	// WriteTimeout bounds each sink write. Default: 5 seconds.
	WriteTimeout time.Duration
}

// DefaultConfig returns the default emitter configuration.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:   1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Emitter queues event records for async delivery to a sink. Emit never
// blocks: when the queue is full the oldest queued record is dropped to
// make room and the drop counter incremented.
type Emitter struct {
	sink    Sink
	config  *Config
	records chan *Record
	dropped atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewEmitter creates an emitter draining into the given sink and starts
// its background worker.
func NewEmitter(sink Sink, config *Config, logger *slog.Logger) *Emitter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Emitter{
		sink:    sink,
		config:  config,
		records: make(chan *Record, config.BufferSize),
		done:    make(chan struct{}),
		logger:  logger.With("component", "events.emitter"),
	}

	e.wg.Add(1)
	go e.worker()

	return e
}

// Emit enqueues a record without blocking. Missing id and timestamp
// fields are filled in.
func (e *Emitter) Emit(record *Record) {
	if record == nil {
		return
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	for {
		select {
		case e.records <- record:
			return
		default:
		}

		// Queue full: drop the oldest queued record and retry.
		select {
		case <-e.records:
			e.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns the number of records dropped due to a full queue.
func (e *Emitter) Dropped() int64 {
	return e.dropped.Load()
}

// Close stops the worker after draining queued records.
func (e *Emitter) Close() error {
	close(e.done)
	e.wg.Wait()
	return e.sink.Close()
}

func (e *Emitter) worker() {
	defer e.wg.Done()

	for {
		select {
		case record := <-e.records:
			e.write(record)
		case <-e.done:
			// Drain remaining records before stopping.
			for {
				select {
				case record := <-e.records:
					e.write(record)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) write(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.WriteTimeout)
	defer cancel()

	if err := e.sink.Write(ctx, record); err != nil {
		e.logger.Error("failed to write event record",
			"record_id", record.ID,
			"kind", record.Kind,
			"error", err,
		)
	}
}

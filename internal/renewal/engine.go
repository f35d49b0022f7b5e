package renewal

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"
)

type EngineConfig struct {
	TickRateHz int
	Projection Config
}

func (c EngineConfig) Validate() error {
	if c.TickRateHz <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickRateHz)
	}
	return c.Projection.Validate()
}

// Engine owns the tick thread: a single loop goroutine that applies queued
// facts through the gate and advances the projection. All engine state is
// touched only from that goroutine; producers reach it via the facts inbox.
type Engine struct {
	cfg    EngineConfig
	logger *log.Logger

	wm   *WorldMap
	gate *Gate
	proj *Projection

	facts chan ChunkMetadataFact
	stop  chan struct{}

	tick atomic.Uint64
}

func NewEngine(cfg EngineConfig, logger *log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	proj, err := NewProjection(cfg.Projection, logger)
	if err != nil {
		return nil, err
	}
	wm := NewWorldMap()
	gate := NewGate(logger)
	e := &Engine{
		cfg:    cfg,
		logger: logger,
		wm:     wm,
		gate:   gate,
		proj:   proj,
		facts:  make(chan ChunkMetadataFact, 4096),
		stop:   make(chan struct{}),
	}
	if err := proj.Attach(wm); err != nil {
		return nil, err
	}
	if err := gate.Attach(wm, proj); err != nil {
		return nil, err
	}
	return e, nil
}

// Facts is the cross-thread hand-off for scanner producers.
func (e *Engine) Facts() chan<- ChunkMetadataFact { return e.facts }

func (e *Engine) WorldMap() *WorldMap     { return e.wm }
func (e *Engine) Projection() *Projection { return e.proj }
func (e *Engine) Gate() *Gate             { return e.gate }

func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }

func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []ChunkMetadataFact

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case f := <-e.facts:
			pending = append(pending, f)
		case <-ticker.C:
			e.step(pending)
			pending = pending[:0]
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

// step is one tick: apply the batch collected since the last tick, then give
// the projection its bounded slice of analysis work.
func (e *Engine) step(pending []ChunkMetadataFact) {
	e.tick.Add(1)
	for _, f := range pending {
		e.gate.ApplyFactOnTickThread(f)
	}
	e.proj.Tick()
}

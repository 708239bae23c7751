package sim

import (
	"math/rand"

	"github.com/yanun0323/errors"

	"main/internal/venue"
)

// FaultConfig controls deterministic fault injection on the simulated
// venue's outbound stream. A zero config injects nothing.
type FaultConfig struct {
	Seed          int64   `yaml:"seed"`
	DropRate      float64 `yaml:"dropRate"`
	DuplicateRate float64 `yaml:"duplicateRate"`
	ReorderWindow int     `yaml:"reorderWindow"`
	DelayRange    int64   `yaml:"delayRange"`
}

// Validate ensures the config is within supported ranges.
func (c FaultConfig) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return errors.New("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return errors.New("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow < 0 {
		return errors.New("reorderWindow must be >= 0")
	}
	if c.DelayRange < 0 {
		return errors.New("delayRange must be >= 0")
	}
	return nil
}

func (c FaultConfig) enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.DelayRange > 0
}

// injector applies drop, duplicate, delay and bounded reorder to events.
// All randomness comes from the seeded source, so identical configs produce
// identical fault sequences.
type injector struct {
	cfg     FaultConfig
	rng     *rand.Rand
	pending []venue.Inbound
}

func newInjector(cfg FaultConfig) (*injector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.enabled() {
		return nil, nil
	}
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &injector{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

func (in *injector) process(ev venue.Inbound) []venue.Inbound {
	if in == nil {
		return []venue.Inbound{ev}
	}
	if in.cfg.DropRate > 0 && in.rng.Float64() < in.cfg.DropRate {
		return nil
	}
	ev = in.applyDelay(ev)
	if in.cfg.ReorderWindow <= 1 {
		return in.applyDuplicate(ev)
	}
	in.pending = append(in.pending, ev)
	if len(in.pending) < in.cfg.ReorderWindow {
		return nil
	}
	idx := in.rng.Intn(len(in.pending))
	out := in.pending[idx]
	in.pending = append(in.pending[:idx], in.pending[idx+1:]...)
	return in.applyDuplicate(out)
}

func (in *injector) flush() []venue.Inbound {
	if in == nil || len(in.pending) == 0 {
		return nil
	}
	out := make([]venue.Inbound, 0, len(in.pending))
	for len(in.pending) > 0 {
		idx := in.rng.Intn(len(in.pending))
		ev := in.pending[idx]
		in.pending = append(in.pending[:idx], in.pending[idx+1:]...)
		out = append(out, in.applyDuplicate(ev)...)
	}
	return out
}

func (in *injector) applyDuplicate(ev venue.Inbound) []venue.Inbound {
	out := []venue.Inbound{ev}
	if in.cfg.DuplicateRate > 0 && in.rng.Float64() < in.cfg.DuplicateRate {
		out = append(out, ev)
	}
	return out
}

func (in *injector) applyDelay(ev venue.Inbound) venue.Inbound {
	if in.cfg.DelayRange <= 0 {
		return ev
	}
	delay := in.rng.Int63n(in.cfg.DelayRange + 1)
	if delay == 0 {
		return ev
	}
	if ev.Header.TsRecv > 0 {
		ev.Header.TsRecv += delay
	} else if ev.Header.TsEvent > 0 {
		ev.Header.TsRecv = ev.Header.TsEvent + delay
	}
	return ev
}

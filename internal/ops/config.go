// Package ops loads the deployment configuration: the instrument catalog,
// risk limits and the per-mode runtime settings. Config is the only place
// symbols and venues appear as strings; everything downstream works with
// registry IDs.
package ops

import (
	"os"
	"time"

	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"main/internal/engine"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/strategy"
	"main/internal/venue/sim"
	"main/internal/venue/stream"
)

// Duration accepts both "5s" strings and integer nanoseconds in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return errors.Wrap(err, "parse duration")
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return errors.New("duration must be a string or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	Registry RegistryConfig `yaml:"registry"`
	Risk     risk.Config    `yaml:"risk"`
	Engine   EngineConfig   `yaml:"engine"`
	WAL      WALConfig      `yaml:"wal"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Backtest BacktestConfig `yaml:"backtest"`
	Live     LiveConfig     `yaml:"live"`
	Strategy StrategyConfig `yaml:"strategy"`
}

// RegistryConfig defines venues, instruments and accounts.
type RegistryConfig struct {
	Venues      []VenueConfig      `yaml:"venues"`
	Instruments []InstrumentConfig `yaml:"instruments"`
	Accounts    []AccountConfig    `yaml:"accounts"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `yaml:"name"`
}

// InstrumentConfig describes one tradable product.
type InstrumentConfig struct {
	Symbol         string           `yaml:"symbol"`
	Venue          string           `yaml:"venue"`
	Class          string           `yaml:"class"`
	Scale          schema.ScaleSpec `yaml:"scale"`
	TickSize       schema.Price     `yaml:"tickSize"`
	LotSize        schema.Quantity  `yaml:"lotSize"`
	InitMarginBps  int64            `yaml:"initMarginBps"`
	MaintMarginBps int64            `yaml:"maintMarginBps"`
}

// AccountConfig describes one trading account.
type AccountConfig struct {
	Name           string          `yaml:"name"`
	Venue          string          `yaml:"venue"`
	InitialBalance schema.Notional `yaml:"initialBalance"`
}

// EngineConfig is the shared engine section.
type EngineConfig struct {
	AckTimeout   Duration `yaml:"ackTimeout"`
	FirstOrderID uint64   `yaml:"firstOrderId"`
	TraceSeed    uint64   `yaml:"traceSeed"`
}

// WALConfig is the recorder section.
type WALConfig struct {
	Dir                string   `yaml:"dir"`
	FilePrefix         string   `yaml:"filePrefix"`
	SegmentMaxBytes    int64    `yaml:"segmentMaxBytes"`
	SegmentMaxDuration Duration `yaml:"segmentMaxDuration"`
	QueueSize          int      `yaml:"queueSize"`
	FlushInterval      Duration `yaml:"flushInterval"`
	SyncInterval       Duration `yaml:"syncInterval"`
}

// SnapshotConfig selects the snapshot store backend.
type SnapshotConfig struct {
	Backend  string         `yaml:"backend"` // "", "file" or "postgres"
	Path     string         `yaml:"path"`
	Postgres store.PGOption `yaml:"postgres"`
	Interval Duration       `yaml:"interval"`
	Archive  Duration       `yaml:"archiveAfter"`
}

// BacktestConfig is the backtest section.
type BacktestConfig struct {
	Venue   SimVenueConfig          `yaml:"venue"`
	Sources []engine.BacktestSource `yaml:"sources"`
}

// SimVenueConfig mirrors sim.Config with parseable durations.
type SimVenueConfig struct {
	Venue       string          `yaml:"venue"`
	MakerFeeBps int64           `yaml:"makerFeeBps"`
	TakerFeeBps int64           `yaml:"takerFeeBps"`
	AckLatency  Duration        `yaml:"ackLatency"`
	Fault       sim.FaultConfig `yaml:"fault"`
}

// LiveConfig is the live session section.
type LiveConfig struct {
	TimeTick   Duration            `yaml:"timeTick"`
	InboxDepth int                 `yaml:"inboxDepth"`
	Data       []stream.DataConfig `yaml:"data"`
	Exec       stream.ExecConfig   `yaml:"exec"`
}

// StrategyConfig selects and parameterizes the strategy.
type StrategyConfig struct {
	Name       string                  `yaml:"name"`
	Account    string                  `yaml:"account"`
	Instrument string                  `yaml:"instrument"`
	SMACross   strategy.SMACrossConfig `yaml:"smaCross"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry *schema.Registry
	Risk     risk.Config
	Engine   engine.Config
	WAL      recorder.Config
	Snapshot SnapshotConfig
	Backtest engine.BacktestConfig
	Live     engine.LiveConfig
	LiveData []stream.DataConfig
	LiveExec stream.ExecConfig
	Strategy StrategyConfig
}

// Load reads a YAML config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}

	engineCfg := engine.Config{
		AckTimeout:   time.Duration(cfg.Engine.AckTimeout),
		FirstOrderID: cfg.Engine.FirstOrderID,
		TraceSeed:    cfg.Engine.TraceSeed,
	}

	walCfg := recorder.Config{
		Dir:                cfg.WAL.Dir,
		FilePrefix:         cfg.WAL.FilePrefix,
		SegmentMaxBytes:    cfg.WAL.SegmentMaxBytes,
		SegmentMaxDuration: time.Duration(cfg.WAL.SegmentMaxDuration),
		QueueSize:          cfg.WAL.QueueSize,
		FlushInterval:      time.Duration(cfg.WAL.FlushInterval),
		SyncInterval:       time.Duration(cfg.WAL.SyncInterval),
	}

	simVenueID := schema.VenueID(0)
	if cfg.Backtest.Venue.Venue != "" {
		id, ok := registry.VenueIDByName(cfg.Backtest.Venue.Venue)
		if !ok {
			return Loaded{}, errors.Errorf("backtest venue not found: %s", cfg.Backtest.Venue.Venue)
		}
		simVenueID = id
	}
	backtestCfg := engine.BacktestConfig{
		Engine: engineCfg,
		Venue: sim.Config{
			VenueID:     simVenueID,
			MakerFeeBps: cfg.Backtest.Venue.MakerFeeBps,
			TakerFeeBps: cfg.Backtest.Venue.TakerFeeBps,
			AckLatency:  time.Duration(cfg.Backtest.Venue.AckLatency),
			Fault:       cfg.Backtest.Venue.Fault,
		},
		Sources: cfg.Backtest.Sources,
	}

	liveCfg := engine.LiveConfig{
		Engine:           engineCfg,
		TimeTick:         time.Duration(cfg.Live.TimeTick),
		SnapshotInterval: time.Duration(cfg.Snapshot.Interval),
		ArchiveAfter:     time.Duration(cfg.Snapshot.Archive),
		InboxDepth:       cfg.Live.InboxDepth,
	}

	strategyCfg, err := resolveStrategy(cfg.Strategy, registry)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Registry: registry,
		Risk:     cfg.Risk,
		Engine:   engineCfg,
		WAL:      walCfg,
		Snapshot: cfg.Snapshot,
		Backtest: backtestCfg,
		Live:     liveCfg,
		LiveData: cfg.Live.Data,
		LiveExec: cfg.Live.Exec,
		Strategy: strategyCfg,
	}, nil
}

// BuildStrategy constructs the configured strategy.
func (l Loaded) BuildStrategy() (strategy.Strategy, error) {
	switch l.Strategy.Name {
	case "", "sma-cross":
		return strategy.NewSMACross(l.Strategy.SMACross)
	default:
		return nil, errors.Errorf("unknown strategy: %s", l.Strategy.Name)
	}
}

// OpenSnapshotStore constructs the configured snapshot store, or nil when
// persistence is disabled.
func (l Loaded) OpenSnapshotStore() (store.SnapshotStore, error) {
	switch l.Snapshot.Backend {
	case "":
		return nil, nil
	case "file":
		return store.NewFileStore(l.Snapshot.Path)
	case "postgres":
		return store.NewPGStore(l.Snapshot.Postgres)
	default:
		return nil, errors.Errorf("unknown snapshot backend: %s", l.Snapshot.Backend)
	}
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, err
		}
	}
	for _, inst := range cfg.Instruments {
		venueID, ok := reg.VenueIDByName(inst.Venue)
		if !ok {
			return nil, errors.Errorf("venue not found: %s", inst.Venue)
		}
		if err := validateScale(inst.Scale); err != nil {
			return nil, errors.Wrapf(err, "invalid scale for %s", inst.Symbol)
		}
		if _, err := reg.AddInstrument(schema.Instrument{
			VenueID:        venueID,
			Symbol:         inst.Symbol,
			Class:          assetClass(inst.Class),
			Scale:          inst.Scale,
			TickSize:       inst.TickSize,
			LotSize:        inst.LotSize,
			InitMarginBps:  inst.InitMarginBps,
			MaintMarginBps: inst.MaintMarginBps,
		}); err != nil {
			return nil, err
		}
	}
	for _, account := range cfg.Accounts {
		venueID, ok := reg.VenueIDByName(account.Venue)
		if !ok {
			return nil, errors.Errorf("venue not found: %s", account.Venue)
		}
		if _, err := reg.AddAccount(account.Name, venueID, account.InitialBalance); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func resolveStrategy(cfg StrategyConfig, reg *schema.Registry) (StrategyConfig, error) {
	if cfg.Account != "" {
		id, ok := reg.AccountIDByName(cfg.Account)
		if !ok {
			return cfg, errors.Errorf("strategy account not found: %s", cfg.Account)
		}
		cfg.SMACross.AccountID = id
	}
	if cfg.Instrument != "" {
		id, ok := reg.InstrumentIDBySymbol(cfg.Instrument)
		if !ok {
			return cfg, errors.Errorf("strategy instrument not found: %s", cfg.Instrument)
		}
		cfg.SMACross.InstrumentID = id
	}
	return cfg, nil
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.NotionalScale < 0 || scale.FeeScale < 0 {
		return errors.New("scale must be >= 0")
	}
	return nil
}

func assetClass(name string) schema.AssetClass {
	switch name {
	case "spot":
		return schema.AssetClassSpot
	case "futures":
		return schema.AssetClassFutures
	case "option":
		return schema.AssetClassOption
	default:
		return schema.AssetClassSpot
	}
}

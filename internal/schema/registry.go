package schema

import "fmt"

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// ScaleSpec defines scaling for the numeric fields of one instrument.
type ScaleSpec struct {
	PriceScale    Scale `yaml:"priceScale"`
	QuantityScale Scale `yaml:"quantityScale"`
	NotionalScale Scale `yaml:"notionalScale"`
	FeeScale      Scale `yaml:"feeScale"`
}

// VenueID is the numeric identifier for a venue.
type VenueID uint16

// InstrumentID is the numeric identifier for an instrument.
type InstrumentID uint32

// AccountID is the numeric identifier for an account.
type AccountID uint32

// AssetClass describes the instrument category.
type AssetClass uint16

const (
	AssetClassUnknown AssetClass = iota
	AssetClassSpot
	AssetClassFutures
	AssetClassOption
)

// Venue describes a trading venue or broker.
type Venue struct {
	ID   VenueID
	Name string
}

// Instrument is the immutable identity of a tradable product. Created once
// at catalog load and referenced by ID everywhere else.
type Instrument struct {
	ID             InstrumentID
	VenueID        VenueID
	Symbol         string
	Class          AssetClass
	Scale          ScaleSpec
	TickSize       Price
	LotSize        Quantity
	InitMarginBps  int64
	MaintMarginBps int64
}

// Account identifies a trading account at a venue.
type Account struct {
	ID             AccountID
	VenueID        VenueID
	Name           string
	InitialBalance Notional
}

// Registry stores venue, instrument and account mappings in a compact form.
// It is built once at startup and read-only afterwards.
type Registry struct {
	venues           []Venue
	instruments      []Instrument
	accounts         []Account
	venueByName      map[string]VenueID
	instrumentByName map[string]InstrumentID
	accountByName    map[string]AccountID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venueByName:      make(map[string]VenueID),
		instrumentByName: make(map[string]InstrumentID),
		accountByName:    make(map[string]AccountID),
	}
}

// AddVenue registers a new venue and returns its ID.
func (r *Registry) AddVenue(name string) (VenueID, error) {
	if name == "" {
		return 0, fmt.Errorf("venue name is empty")
	}
	if id, ok := r.venueByName[name]; ok {
		return id, fmt.Errorf("venue already exists: %s", name)
	}
	id := VenueID(len(r.venues) + 1)
	r.venues = append(r.venues, Venue{ID: id, Name: name})
	r.venueByName[name] = id
	return id, nil
}

// AddInstrument registers a new instrument and returns its ID. Registering
// the same symbol twice is rejected: instrument identity is never reused
// within one session, even for an identical definition.
func (r *Registry) AddInstrument(def Instrument) (InstrumentID, error) {
	if def.Symbol == "" {
		return 0, fmt.Errorf("instrument symbol is empty")
	}
	if def.VenueID == 0 {
		return 0, fmt.Errorf("venue id is invalid")
	}
	if _, ok := r.Venue(def.VenueID); !ok {
		return 0, fmt.Errorf("venue id not found: %d", def.VenueID)
	}
	if id, ok := r.instrumentByName[def.Symbol]; ok {
		return id, fmt.Errorf("instrument already exists: %s", def.Symbol)
	}
	if def.TickSize <= 0 {
		return 0, fmt.Errorf("tick size must be > 0 for %s", def.Symbol)
	}
	if def.LotSize <= 0 {
		return 0, fmt.Errorf("lot size must be > 0 for %s", def.Symbol)
	}
	def.ID = InstrumentID(len(r.instruments) + 1)
	r.instruments = append(r.instruments, def)
	r.instrumentByName[def.Symbol] = def.ID
	return def.ID, nil
}

// AddAccount registers a new account and returns its ID.
func (r *Registry) AddAccount(name string, venueID VenueID, initial Notional) (AccountID, error) {
	if name == "" {
		return 0, fmt.Errorf("account name is empty")
	}
	if _, ok := r.Venue(venueID); !ok {
		return 0, fmt.Errorf("venue id not found: %d", venueID)
	}
	if id, ok := r.accountByName[name]; ok {
		return id, fmt.Errorf("account already exists: %s", name)
	}
	id := AccountID(len(r.accounts) + 1)
	r.accounts = append(r.accounts, Account{
		ID:             id,
		VenueID:        venueID,
		Name:           name,
		InitialBalance: initial,
	})
	r.accountByName[name] = id
	return id, nil
}

// Venue returns the venue by ID.
func (r *Registry) Venue(id VenueID) (Venue, bool) {
	if id == 0 || int(id) > len(r.venues) {
		return Venue{}, false
	}
	return r.venues[id-1], true
}

// Instrument returns the instrument by ID.
func (r *Registry) Instrument(id InstrumentID) (Instrument, bool) {
	if id == 0 || int(id) > len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[id-1], true
}

// Account returns the account by ID.
func (r *Registry) Account(id AccountID) (Account, bool) {
	if id == 0 || int(id) > len(r.accounts) {
		return Account{}, false
	}
	return r.accounts[id-1], true
}

// InstrumentCount returns the number of registered instruments.
func (r *Registry) InstrumentCount() int {
	return len(r.instruments)
}

// InstrumentAt returns the instrument by zero-based index.
func (r *Registry) InstrumentAt(index int) (Instrument, bool) {
	if index < 0 || index >= len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[index], true
}

// AccountCount returns the number of registered accounts.
func (r *Registry) AccountCount() int {
	return len(r.accounts)
}

// AccountAt returns the account by zero-based index.
func (r *Registry) AccountAt(index int) (Account, bool) {
	if index < 0 || index >= len(r.accounts) {
		return Account{}, false
	}
	return r.accounts[index], true
}

// VenueIDByName returns the venue ID for a name.
func (r *Registry) VenueIDByName(name string) (VenueID, bool) {
	id, ok := r.venueByName[name]
	return id, ok
}

// InstrumentIDBySymbol returns the instrument ID for a symbol.
func (r *Registry) InstrumentIDBySymbol(symbol string) (InstrumentID, bool) {
	id, ok := r.instrumentByName[symbol]
	return id, ok
}

// AccountIDByName returns the account ID for a name.
func (r *Registry) AccountIDByName(name string) (AccountID, bool) {
	id, ok := r.accountByName[name]
	return id, ok
}

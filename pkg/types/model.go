package types

import (
	"encoding/json"
	"time"
)

const (
	CurrentPriceSnapshotVersion = 1
)

// EnergyKind is the commodity a meter measures.
type EnergyKind string

const (
	EnergyKindElectricity EnergyKind = "Electricity"
	EnergyKindGas         EnergyKind = "Gas"
)

// Source is one of the systems that reports readings for a meter.
type Source struct {
	Provider string `json:"sourceProvider"`
	// Status is only present for sources that need an eligibility check
	Status string `json:"status,omitempty"`
}

// Meter represents a billable connection point identified by its EAN.
type Meter struct {
	EAN        string     `json:"ean"`
	EnergyType EnergyKind `json:"energyType"`
	Sources    []Source   `json:"sources"`
}

// Clone returns a deep copy of the meter.
func (m Meter) Clone() Meter {
	if m.Sources != nil {
		sources := make([]Source, len(m.Sources))
		copy(sources, m.Sources)
		m.Sources = sources
	}
	return m
}

// CloneMeters returns a deep copy of the list of meters.
func CloneMeters(meters []Meter) []Meter {
	if meters == nil {
		return nil
	}
	out := make([]Meter, len(meters))
	for i, m := range meters {
		out[i] = m.Clone()
	}
	return out
}

// TariffProfile names a pricing structure. The set is open ended, anything
// returned by Luminus is kept as-is.
type TariffProfile string

const (
	TariffProfileSingle               TariffProfile = "single"
	TariffProfileDual                 TariffProfile = "dual"
	TariffProfileSingleExclusiveNight TariffProfile = "singleExclusiveNight"
	TariffProfileDualExclusiveNight   TariffProfile = "dualExclusiveNight"
)

// Well-known price component names. Components are keyed by these inside a
// tariff profile.
const (
	ComponentFixed              = "fixed"
	ComponentSingle             = "single"
	ComponentDualDay            = "dualDay"
	ComponentDualNight          = "dualNight"
	ComponentExclusiveNight     = "exclusiveNight"
	ComponentInjectionSingle    = "injectionSingle"
	ComponentInjectionDualDay   = "injectionDualDay"
	ComponentInjectionDualNight = "injectionDualNight"
)

// PriceComponent is a single rate within a tariff profile.
type PriceComponent struct {
	// Rate is in EUR/year for the fixed component and c€/kWh otherwise.
	Rate float64 `json:"rate"`
	// Formula is the indexation formula, absent for fixed fees.
	Formula string `json:"formula,omitempty"`
}

// PriceDocument is the price information Luminus returns for one meter.
type PriceDocument struct {
	ProductName     string                                      `json:"productName"`
	Disclaimer      string                                      `json:"disclaimer"`
	ActiveMeterType TariffProfile                               `json:"activeMeterType"`
	Prices          map[TariffProfile]map[string]PriceComponent `json:"prices"`
	// Promotions are passed through untouched.
	Promotions []json.RawMessage `json:"promotionsContent"`
}

// ActivePrices returns the components of the active tariff profile or nil if
// the document has no prices for it.
func (d PriceDocument) ActivePrices() map[string]PriceComponent {
	return d.Prices[d.ActiveMeterType]
}

// Clone returns a deep copy of the document.
func (d PriceDocument) Clone() PriceDocument {
	d.Prices = clonePrices(d.Prices)
	if d.Promotions != nil {
		promos := make([]json.RawMessage, len(d.Promotions))
		for i, p := range d.Promotions {
			if p != nil {
				promos[i] = append(json.RawMessage(nil), p...)
			}
		}
		d.Promotions = promos
	}
	return d
}

func clonePrices(prices map[TariffProfile]map[string]PriceComponent) map[TariffProfile]map[string]PriceComponent {
	if prices == nil {
		return nil
	}
	out := make(map[TariffProfile]map[string]PriceComponent, len(prices))
	for profile, components := range prices {
		if components == nil {
			out[profile] = nil
			continue
		}
		c := make(map[string]PriceComponent, len(components))
		for name, comp := range components {
			c[name] = comp
		}
		out[profile] = c
	}
	return out
}

// PriceSnapshot is a PriceDocument observed at a point in time for a meter.
type PriceSnapshot struct {
	EAN             string                                      `json:"ean"`
	EnergyType      EnergyKind                                  `json:"energyType"`
	ProductName     string                                      `json:"productName"`
	ActiveMeterType TariffProfile                               `json:"activeMeterType"`
	Prices          map[TariffProfile]map[string]PriceComponent `json:"prices"`
	TSFetched       time.Time                                   `json:"tsFetched"`
	Version         int                                         `json:"version"`
}

// NewPriceSnapshot builds a snapshot of doc for the given meter.
func NewPriceSnapshot(m Meter, doc PriceDocument, fetched time.Time) PriceSnapshot {
	return PriceSnapshot{
		EAN:             m.EAN,
		EnergyType:      m.EnergyType,
		ProductName:     doc.ProductName,
		ActiveMeterType: doc.ActiveMeterType,
		Prices:          clonePrices(doc.Prices),
		TSFetched:       fetched,
		Version:         CurrentPriceSnapshotVersion,
	}
}

// Clone returns a deep copy of the snapshot.
func (s PriceSnapshot) Clone() PriceSnapshot {
	s.Prices = clonePrices(s.Prices)
	return s
}

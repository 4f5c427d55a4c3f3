package luminus

import (
	"encoding/json"

	"github.com/raterudder/luminus/pkg/types"
)

const (
	MockEANElectricity = "000000000123456789"
	MockEANGas         = "123456789000000000"
)

var mockSources = []types.Source{
	{Provider: "SAP"},
	{Provider: "BasicMonitoring", Status: "Eligible"},
}

var mockMeters = []types.Meter{
	{EAN: MockEANElectricity, EnergyType: types.EnergyKindElectricity, Sources: mockSources},
	{EAN: MockEANGas, EnergyType: types.EnergyKindGas, Sources: mockSources},
}

const (
	formulaSingle             = "0.0010881 x Belpex RLP M [67.52] + 0.014342"
	formulaDualDay            = "0.001261 x Belpex RLP M [67.52] + 0.0179388"
	formulaDualNight          = "0.000943 x Belpex RLP M [67.52] + 0.0116652"
	formulaInjectionSingle    = "0.0006444 x Belpex M INJ [65.33] - 0.0159"
	formulaInjectionDualDay   = "0.0007944 x Belpex M INJ [65.33] - 0.0159"
	formulaInjectionDualNight = "0.0004144 x Belpex M INJ [65.33] - 0.0159"
)

var mockPrices = map[string]types.PriceDocument{
	MockEANElectricity: {
		ProductName:     "Luminus Elektriciteit",
		Disclaimer:      "De vermelde prijzen en eventuele promoties zijn incl. 6% BTW, de tariefformules zijn exclusief btw. ...de prijzen en promoties.",
		ActiveMeterType: types.TariffProfileDual,
		Prices: map[types.TariffProfile]map[string]types.PriceComponent{
			types.TariffProfileSingle: {
				types.ComponentFixed:           {Rate: 25},
				types.ComponentSingle:          {Rate: 9.31, Formula: formulaSingle},
				types.ComponentInjectionSingle: {Rate: 2.62, Formula: formulaInjectionSingle},
			},
			types.TariffProfileDual: {
				types.ComponentFixed:              {Rate: 25},
				types.ComponentDualDay:            {Rate: 10.93, Formula: formulaDualDay},
				types.ComponentDualNight:          {Rate: 7.99, Formula: formulaDualNight},
				types.ComponentInjectionDualDay:   {Rate: 3.6, Formula: formulaInjectionDualDay},
				types.ComponentInjectionDualNight: {Rate: 1.12, Formula: formulaInjectionDualNight},
			},
			types.TariffProfileSingleExclusiveNight: {
				types.ComponentFixed:           {Rate: 25},
				types.ComponentSingle:          {Rate: 9.31, Formula: formulaSingle},
				types.ComponentExclusiveNight:  {Rate: 7.99, Formula: formulaDualNight},
				types.ComponentInjectionSingle: {Rate: 2.62, Formula: formulaInjectionSingle},
			},
			types.TariffProfileDualExclusiveNight: {
				types.ComponentFixed:              {Rate: 25},
				types.ComponentDualDay:            {Rate: 10.93, Formula: formulaDualDay},
				types.ComponentDualNight:          {Rate: 7.99, Formula: formulaDualNight},
				types.ComponentExclusiveNight:     {Rate: 7.99, Formula: formulaDualNight},
				types.ComponentInjectionDualDay:   {Rate: 3.6, Formula: formulaInjectionDualDay},
				types.ComponentInjectionDualNight: {Rate: 1.12, Formula: formulaInjectionDualNight},
			},
		},
		Promotions: []json.RawMessage{},
	},
	MockEANGas: {
		ProductName:     "Luminus Gas",
		Disclaimer:      "De vermelde prijzen en eventuele promoties zijn incl. 6% BTW, de tariefformules zijn exclusief btw. ... de prijzen en promoties.",
		ActiveMeterType: types.TariffProfileSingle,
		Prices: map[types.TariffProfile]map[string]types.PriceComponent{
			types.TariffProfileSingle: {
				types.ComponentFixed:  {Rate: 20},
				types.ComponentSingle: {Rate: 4.4, Formula: "0.001 x TTF DAH RLP M [36.167] + 0.0053"},
			},
		},
		Promotions: []json.RawMessage{},
	},
}

// mockStore is a per-client copy of the fixtures. Every read hands out
// another copy so callers can never change what the next caller sees.
type mockStore struct {
	meters []types.Meter
	prices map[string]types.PriceDocument
}

func newMockStore() *mockStore {
	s := &mockStore{
		meters: types.CloneMeters(mockMeters),
		prices: make(map[string]types.PriceDocument, len(mockPrices)),
	}
	for ean, doc := range mockPrices {
		s.prices[ean] = doc.Clone()
	}
	return s
}

func (s *mockStore) listMeters() []types.Meter {
	return types.CloneMeters(s.meters)
}

func (s *mockStore) meterPricing(ean string) (types.PriceDocument, error) {
	doc, ok := s.prices[ean]
	if !ok {
		return types.PriceDocument{}, &NotFoundError{EAN: ean}
	}
	return doc.Clone(), nil
}

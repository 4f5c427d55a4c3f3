package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterClone(t *testing.T) {
	m := Meter{
		EAN:        "541234",
		EnergyType: EnergyKindGas,
		Sources:    []Source{{Provider: "SAP"}, {Provider: "BasicMonitoring", Status: "Eligible"}},
	}
	c := m.Clone()
	assert.Equal(t, m, c)

	c.Sources[1].Status = "NotEligible"
	assert.Equal(t, "Eligible", m.Sources[1].Status, "clone should not share sources")

	assert.Nil(t, CloneMeters(nil))
	list := CloneMeters([]Meter{m})
	list[0].Sources[0].Provider = "changed"
	assert.Equal(t, "SAP", m.Sources[0].Provider)
}

func TestPriceDocument(t *testing.T) {
	body := `{
		"productName": "Luminus Gas",
		"disclaimer": "incl. BTW",
		"activeMeterType": "single",
		"prices": {
			"single": {
				"fixed": {"rate": 20},
				"single": {"rate": 4.4, "formula": "0.001 x TTF DAH RLP M [36.167] + 0.0053"}
			}
		},
		"promotionsContent": [{"id": 1}]
	}`

	var doc PriceDocument
	require.NoError(t, json.Unmarshal([]byte(body), &doc))

	assert.Equal(t, TariffProfileSingle, doc.ActiveMeterType)
	active := doc.ActivePrices()
	require.NotNil(t, active)
	assert.Equal(t, 20.0, active[ComponentFixed].Rate)
	assert.Empty(t, active[ComponentFixed].Formula)
	assert.Equal(t, 4.4, active[ComponentSingle].Rate)
	require.Len(t, doc.Promotions, 1)
	assert.JSONEq(t, `{"id": 1}`, string(doc.Promotions[0]))

	t.Run("clone is independent", func(t *testing.T) {
		c := doc.Clone()
		assert.Equal(t, doc, c)

		c.Prices[TariffProfileSingle][ComponentFixed] = PriceComponent{Rate: 99}
		c.Promotions[0][1] = 'X'
		assert.Equal(t, 20.0, doc.Prices[TariffProfileSingle][ComponentFixed].Rate)
		assert.JSONEq(t, `{"id": 1}`, string(doc.Promotions[0]))
	})

	t.Run("missing active profile", func(t *testing.T) {
		d := PriceDocument{ActiveMeterType: TariffProfileDual}
		assert.Nil(t, d.ActivePrices())
	})

	t.Run("snapshot", func(t *testing.T) {
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		s := NewPriceSnapshot(Meter{EAN: "123", EnergyType: EnergyKindGas}, doc, now)
		assert.Equal(t, "123", s.EAN)
		assert.Equal(t, EnergyKindGas, s.EnergyType)
		assert.Equal(t, "Luminus Gas", s.ProductName)
		assert.Equal(t, now, s.TSFetched)
		assert.Equal(t, CurrentPriceSnapshotVersion, s.Version)

		s.Prices[TariffProfileSingle][ComponentSingle] = PriceComponent{}
		assert.Equal(t, 4.4, doc.Prices[TariffProfileSingle][ComponentSingle].Rate)

		c := s.Clone()
		c.Prices[TariffProfileSingle][ComponentFixed] = PriceComponent{Rate: 1}
		assert.Equal(t, 20.0, s.Prices[TariffProfileSingle][ComponentFixed].Rate)
	})
}

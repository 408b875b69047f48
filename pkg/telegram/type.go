package telegram

// OBIS identifiers of the registers kept from each telegram.
const (
	ObisDeliveredLowTariff  = "1-0:1.8.1"
	ObisDeliveredHighTariff = "1-0:1.8.2"
	ObisReceivedLowTariff   = "1-0:2.8.1"
	ObisReceivedHighTariff  = "1-0:2.8.2"
	ObisTariffIndicator     = "0-0:96.14.0"
	ObisPowerDelivered      = "1-0:1.7.0"
	ObisPowerReceived       = "1-0:2.7.0"
	ObisMaxDemand           = "0-0:17.0.0"
	ObisSwitchPosition      = "0-0:96.3.10"
)

// Terminator is the line that closes a telegram.
const Terminator = "!"

// Frame is one telegram's worth of register values.
// A nil field was not present (or not readable) in that telegram.
type Frame struct {
	// Cumulative, kWh
	DeliveredLowTariff  *float64 `json:"delivered_energy_low_tariff"`
	DeliveredHighTariff *float64 `json:"delivered_energy_high_tariff"`
	ReceivedLowTariff   *float64 `json:"received_energy_low_tariff"`
	ReceivedHighTariff  *float64 `json:"received_energy_high_tariff"`

	TariffIndicator *int32 `json:"current_tariff_indicator"`

	// Current readings, kW
	PowerDelivered *float64 `json:"instantaneous_power_delivered"`
	PowerReceived  *float64 `json:"instantaneous_power_received"`
	MaxDemand      *float64 `json:"max_demand"`

	SwitchPosition *int32 `json:"switch_position"`
}

// IsEmpty reports whether no register was set.
func (f Frame) IsEmpty() bool {
	return f.DeliveredLowTariff == nil &&
		f.DeliveredHighTariff == nil &&
		f.ReceivedLowTariff == nil &&
		f.ReceivedHighTariff == nil &&
		f.TariffIndicator == nil &&
		f.PowerDelivered == nil &&
		f.PowerReceived == nil &&
		f.MaxDemand == nil &&
		f.SwitchPosition == nil
}

// register binds an identifier to the Frame field it fills.
type register struct {
	id  string
	set func(f *Frame, v float64)
}

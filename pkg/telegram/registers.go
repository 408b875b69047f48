package telegram

import "github.com/NotCoffee418/p1_load_monitor/pkg/esmutils"

// Every line is tried against every entry; identifiers are not assumed
// to be mutually exclusive.
var registers = []register{
	{ObisDeliveredLowTariff, floatSetter(func(f *Frame) **float64 { return &f.DeliveredLowTariff })},
	{ObisDeliveredHighTariff, floatSetter(func(f *Frame) **float64 { return &f.DeliveredHighTariff })},
	{ObisReceivedLowTariff, floatSetter(func(f *Frame) **float64 { return &f.ReceivedLowTariff })},
	{ObisReceivedHighTariff, floatSetter(func(f *Frame) **float64 { return &f.ReceivedHighTariff })},
	{ObisTariffIndicator, intSetter(func(f *Frame) **int32 { return &f.TariffIndicator })},
	{ObisPowerDelivered, floatSetter(func(f *Frame) **float64 { return &f.PowerDelivered })},
	{ObisPowerReceived, floatSetter(func(f *Frame) **float64 { return &f.PowerReceived })},
	{ObisMaxDemand, floatSetter(func(f *Frame) **float64 { return &f.MaxDemand })},
	{ObisSwitchPosition, intSetter(func(f *Frame) **int32 { return &f.SwitchPosition })},
}

// Identifiers lists the recognized register identifiers in table order.
func Identifiers() []string {
	ids := make([]string, len(registers))
	for i, r := range registers {
		ids[i] = r.id
	}
	return ids
}

func floatSetter(field func(f *Frame) **float64) func(*Frame, float64) {
	return func(f *Frame, v float64) {
		*field(f) = &v
	}
}

func intSetter(field func(f *Frame) **int32) func(*Frame, float64) {
	return func(f *Frame, v float64) {
		n := esmutils.TruncInt32(v)
		*field(f) = &n
	}
}

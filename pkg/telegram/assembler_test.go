package telegram

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemble(a *Assembler, lines ...string) []Frame {
	return slices.Collect(a.Frames(slices.Values(lines)))
}

func TestAssemblerTwoFrames(t *testing.T) {
	frames := assemble(NewAssembler(),
		"1-0:1.8.1(123.4*kWh)", "!",
		"1-0:1.8.1(200.0*kWh)", "!",
	)
	require.Len(t, frames, 2)

	require.NotNil(t, frames[0].DeliveredLowTariff)
	assert.Equal(t, 123.4, *frames[0].DeliveredLowTariff)
	require.NotNil(t, frames[1].DeliveredLowTariff)
	assert.Equal(t, 200.0, *frames[1].DeliveredLowTariff)

	for _, f := range frames {
		f.DeliveredLowTariff = nil
		assert.True(t, f.IsEmpty())
	}
}

func TestAssemblerResetsOnTerminator(t *testing.T) {
	frames := assemble(NewAssembler(),
		"1-0:1.8.2(5.0*kWh)",
		"0-0:96.14.0(0002)",
		"!",
		"1-0:1.7.0(01.250*kW)",
		"!",
	)
	require.Len(t, frames, 2)

	require.NotNil(t, frames[0].DeliveredHighTariff)
	require.NotNil(t, frames[0].TariffIndicator)
	assert.Equal(t, int32(2), *frames[0].TariffIndicator)
	assert.Nil(t, frames[0].PowerDelivered)

	assert.Nil(t, frames[1].DeliveredHighTariff)
	assert.Nil(t, frames[1].TariffIndicator)
	require.NotNil(t, frames[1].PowerDelivered)
	assert.Equal(t, 1.25, *frames[1].PowerDelivered)
}

func TestAssemblerSnapshotsAreIndependent(t *testing.T) {
	a := NewAssembler()
	first, ok := a.Feed("!")
	require.True(t, ok)
	assert.True(t, first.IsEmpty())

	a.Feed("1-0:2.7.0(00.100*kW)")
	second, ok := a.Feed("!")
	require.True(t, ok)
	require.NotNil(t, second.PowerReceived)

	a.Feed("1-0:2.7.0(00.300*kW)")
	third, _ := a.Feed("!")
	assert.Equal(t, 0.1, *second.PowerReceived)
	assert.Equal(t, 0.3, *third.PowerReceived)
}

func TestAssemblerFullTelegram(t *testing.T) {
	lines := []string{
		"/ISk5\\2MT382-1000",
		"",
		"1-3:0.2.8(50)",
		"0-0:1.0.0(101209113020W)",
		"0-0:96.1.1(4B384547303034303436333935353037)",
		"1-0:1.8.1(123456.789*kWh)",
		"1-0:1.8.2(123456.789*kWh)",
		"1-0:2.8.1(123456.789*kWh)",
		"1-0:2.8.2(123456.789*kWh)",
		"0-0:96.14.0(0002)",
		"1-0:1.7.0(01.193*kW)",
		"1-0:2.7.0(00.000*kW)",
		"0-0:17.0.0(016.1*kW)",
		"0-0:96.3.10(1)",
		"0-0:96.7.21(00004)",
		"!",
	}
	frames := assemble(NewAssembler(), lines...)
	require.Len(t, frames, 1)
	f := frames[0]

	assert.Equal(t, 123456.789, *f.DeliveredLowTariff)
	assert.Equal(t, 123456.789, *f.DeliveredHighTariff)
	assert.Equal(t, 123456.789, *f.ReceivedLowTariff)
	assert.Equal(t, 123456.789, *f.ReceivedHighTariff)
	assert.Equal(t, int32(2), *f.TariffIndicator)
	assert.Equal(t, 1.193, *f.PowerDelivered)
	assert.Equal(t, 0.0, *f.PowerReceived)
	assert.Equal(t, 16.1, *f.MaxDemand)
	assert.Equal(t, int32(1), *f.SwitchPosition)
}

func TestAssemblerLastWriteWins(t *testing.T) {
	frames := assemble(NewAssembler(), "0-0:17.0.0(1.0*kW)", "0-0:17.0.0(2.0*kW)", "!")
	require.Len(t, frames, 1)
	assert.Equal(t, 2.0, *frames[0].MaxDemand)
}

func TestAssemblerDropsPartialFrame(t *testing.T) {
	frames := assemble(NewAssembler(), "1-0:1.8.1(1*kWh)", "!", "1-0:1.8.1(2*kWh)")
	assert.Len(t, frames, 1)
}

func TestAssemblerIntTruncation(t *testing.T) {
	frames := assemble(NewAssembler(), "0-0:96.3.10(1.9)", "0-0:96.14.0(-2.7)", "!")
	require.Len(t, frames, 1)
	assert.Equal(t, int32(1), *frames[0].SwitchPosition)
	assert.Equal(t, int32(-2), *frames[0].TariffIndicator)
}

func TestAssemblerMalformedHook(t *testing.T) {
	var reported []string
	a := NewAssembler(WithMalformedHook(func(id, line string) {
		reported = append(reported, id)
	}))

	frames := assemble(a,
		"1-0:1.8.1(garbage*kWh)",
		"0-0:1.0.0(101209113020W)",
		"1-0:1.7.0(01.000*kW)",
		"!",
	)
	require.Len(t, frames, 1)
	assert.Nil(t, frames[0].DeliveredLowTariff)
	assert.NotNil(t, frames[0].PowerDelivered)
	assert.Equal(t, []string{ObisDeliveredLowTariff}, reported)
}

func TestAssemblerFramesStopsEarly(t *testing.T) {
	a := NewAssembler()
	n := 0
	for range a.Frames(slices.Values([]string{"!", "!", "!"})) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func checkedTelegram(body []string, corrupt bool) []string {
	raw := strings.Join(body, "\r\n") + "\r\n!"
	sum := Checksum(raw)
	if corrupt {
		sum ^= 0xFFFF
	}
	return append(slices.Clone(body), fmt.Sprintf("!%04X", sum))
}

func TestAssemblerChecksum(t *testing.T) {
	body := []string{
		"/ISK5\\2M550T-1012",
		"",
		"1-0:1.8.2(000100.000*kWh)",
		"1-0:1.7.0(00.500*kW)",
	}

	t.Run("valid telegram is emitted", func(t *testing.T) {
		frames := assemble(NewAssembler(WithChecksum()), checkedTelegram(body, false)...)
		require.Len(t, frames, 1)
		assert.Equal(t, 100.0, *frames[0].DeliveredHighTariff)
	})

	t.Run("corrupt telegram is dropped", func(t *testing.T) {
		var dropped []string
		a := NewAssembler(WithChecksum(), WithChecksumHook(func(line string) {
			dropped = append(dropped, line)
		}))
		lines := append(checkedTelegram(body, true), checkedTelegram(body, false)...)
		frames := assemble(a, lines...)
		require.Len(t, frames, 1)
		assert.Len(t, dropped, 1)
	})

	t.Run("lines before header are ignored", func(t *testing.T) {
		lines := append([]string{"1-0:1.8.1(9*kWh)", "!"}, checkedTelegram(body, false)...)
		frames := assemble(NewAssembler(WithChecksum()), lines...)
		require.Len(t, frames, 1)
		assert.Nil(t, frames[0].DeliveredLowTariff)
	})

	t.Run("bare terminator fails verification", func(t *testing.T) {
		lines := append(slices.Clone(body), "!")
		frames := assemble(NewAssembler(WithChecksum()), lines...)
		assert.Empty(t, frames)
	})
}

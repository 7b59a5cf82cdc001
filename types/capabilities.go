package types

// ------------------------
// Reading kinds
// ------------------------

// Kind tags the measurement carried by a Reading.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBrightness
	KindTemperature
	KindHumidity
	KindPressure
	KindGasResistance
	KindCO2
	KindMassPM1_0
	KindMassPM2_5
	KindMassPM4_0
	KindMassPM10
	KindNumberPM0_5
	KindNumberPM1_0
	KindNumberPM2_5
	KindNumberPM4_0
	KindNumberPM10
	KindTypicalParticleSize
	KindButtonPress

	kindCount
)

var kindNames = [kindCount]string{
	KindUnknown:             "unknown",
	KindBrightness:          "brightness",
	KindTemperature:         "temperature",
	KindHumidity:            "humidity",
	KindPressure:            "pressure",
	KindGasResistance:       "gas_resistance",
	KindCO2:                 "co2",
	KindMassPM1_0:           "mass_pm1_0",
	KindMassPM2_5:           "mass_pm2_5",
	KindMassPM4_0:           "mass_pm4_0",
	KindMassPM10:            "mass_pm10",
	KindNumberPM0_5:         "number_pm0_5",
	KindNumberPM1_0:         "number_pm1_0",
	KindNumberPM2_5:         "number_pm2_5",
	KindNumberPM4_0:         "number_pm4_0",
	KindNumberPM10:          "number_pm10",
	KindTypicalParticleSize: "typical_particle_size",
	KindButtonPress:         "button_press",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// Valid reports whether k is a known, non-zero kind.
func (k Kind) Valid() bool { return k > KindUnknown && k < kindCount }

// Unit is the SI-ish unit the value of a kind is expressed in.
func (k Kind) Unit() string {
	switch k {
	case KindBrightness:
		return "lx"
	case KindTemperature:
		return "C"
	case KindHumidity:
		return "%RH"
	case KindPressure:
		return "Pa"
	case KindGasResistance:
		return "Ohm"
	case KindCO2:
		return "ppm"
	case KindMassPM1_0, KindMassPM2_5, KindMassPM4_0, KindMassPM10:
		return "ug/m3"
	case KindNumberPM0_5, KindNumberPM1_0, KindNumberPM2_5, KindNumberPM4_0, KindNumberPM10:
		return "#/cm3"
	case KindTypicalParticleSize:
		return "um"
	case KindButtonPress:
		return "ms"
	default:
		return ""
	}
}

// ------------------------
// Devices
// ------------------------

// Device identifies the physical part a reading or fault originates from.
type Device uint8

const (
	DeviceUnknown Device = iota
	DeviceMax44009
	DeviceSht31
	DeviceShtc3
	DeviceAht20
	DeviceBme680
	DeviceBme280
	DeviceMhz14
	DeviceSps30
	DeviceButton

	deviceCount
)

var deviceNames = [deviceCount]string{
	DeviceUnknown:  "unknown",
	DeviceMax44009: "max44009",
	DeviceSht31:    "sht31",
	DeviceShtc3:    "shtc3",
	DeviceAht20:    "aht20",
	DeviceBme680:   "bme680",
	DeviceBme280:   "bme280",
	DeviceMhz14:    "mhz14",
	DeviceSps30:    "sps30",
	DeviceButton:   "button",
}

func (d Device) String() string {
	if d < deviceCount {
		return deviceNames[d]
	}
	return "unknown"
}

// Valid reports whether d is a known, non-zero device.
func (d Device) Valid() bool { return d > DeviceUnknown && d < deviceCount }

// ParseDevice maps a device name (as used in configuration) to its identifier.
func ParseDevice(s string) (Device, bool) {
	for i, n := range deviceNames {
		if n == s && Device(i) != DeviceUnknown {
			return Device(i), true
		}
	}
	return DeviceUnknown, false
}

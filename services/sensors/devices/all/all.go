// Package all registers every sensor builder.
package all

import (
	_ "sensenode/services/sensors/devices/aht20"
	_ "sensenode/services/sensors/devices/bme280"
	_ "sensenode/services/sensors/devices/bme680"
	_ "sensenode/services/sensors/devices/max44009"
	_ "sensenode/services/sensors/devices/mhz14"
	_ "sensenode/services/sensors/devices/sht31"
	_ "sensenode/services/sensors/devices/shtc3"
	_ "sensenode/services/sensors/devices/sps30"
)

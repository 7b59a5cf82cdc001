package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: board name (--board). Val: YAML defaults for that board. Keys follow
// the mapstructure tags of Node; durations are strings ("250ms").
// -----------------------------------------------------------------------------

const cfgSim = `
node: sim-node
log:
  level: info
  format: console
platform:
  name: sim
  seed: 1
  i2c:
    i2c0: sim
  serial:
    uart0: mhz14
    uart1: sps30
  inputs:
    top_left: sim
    top_right: sim
    middle_inner: sim
    middle_center: sim
    middle_outer: sim
    lower_inner: sim
    lower_center: sim
    lower_outer: sim
mailbox:
  capacity: 20
sensors:
  settle: 1s
  read_timeout: 100ms
  setup_timeout: 250ms
  noise_floor: 5ms
  light:
    type: max44009
    bus: i2c0
    period: 50ms
    change_ratio: 0.05
    report_interval: 1s
    fault_holdoff: 1s
  sensors:
    - type: sht31
      bus: i2c0
    - type: aht20
      bus: i2c0
    - type: mhz14
      port: uart0
    - type: sps30
      port: uart1
  buttons:
    - {button: top_left, input: top_left}
    - {button: top_right, input: top_right}
    - {button: middle_inner, input: middle_inner}
    - {button: middle_center, input: middle_center}
    - {button: middle_outer, input: middle_outer}
    - {button: lower_inner, input: lower_inner}
    - {button: lower_center, input: lower_center}
    - {button: lower_outer, input: lower_outer}
network:
  transport: tcp
  address: 127.0.0.1:7070
  connect_timeout: 10s
  retry_interval: 1s
  write_timeout: 5s
  window: 200ms
  batch_size: 6
  low_threshold: 3
watchdog:
  timeout: 20s
  interval: 8s
metrics:
  listen: ""
disarm_on_shutdown: true
`

// Raspberry Pi carrier: sensors on /dev/i2c-1, CO2 on the PL011 UART,
// particulates on a USB adaptor, buttons on header GPIOs.
const cfgRPi = `
node: ""
log:
  level: info
  format: json
platform:
  name: linux
  i2c:
    i2c0: "1"
  serial:
    uart0: /dev/ttyAMA0
    uart1: /dev/ttyUSB0
  inputs:
    top_left: GPIO5
    top_right: GPIO6
    middle_inner: GPIO13
    middle_center: GPIO19
    middle_outer: GPIO26
    lower_inner: GPIO16
    lower_center: GPIO20
    lower_outer: GPIO21
  watchdog: /dev/watchdog
mailbox:
  capacity: 20
sensors:
  settle: 1s
  read_timeout: 100ms
  setup_timeout: 250ms
  noise_floor: 5ms
  light:
    type: max44009
    bus: i2c0
    period: 50ms
    change_ratio: 0.05
    report_interval: 1s
    fault_holdoff: 1s
  sensors:
    - type: sht31
      bus: i2c0
      params:
        repeat: high
    - type: bme680
      bus: i2c0
      params:
        addr: 0x77
    - type: mhz14
      port: uart0
      params:
        abc: false
    - type: sps30
      port: uart1
  buttons:
    - {button: top_left, input: top_left}
    - {button: top_right, input: top_right}
    - {button: middle_inner, input: middle_inner}
    - {button: middle_center, input: middle_center}
    - {button: middle_outer, input: middle_outer}
    - {button: lower_inner, input: lower_inner}
    - {button: lower_center, input: lower_center}
    - {button: lower_outer, input: lower_outer}
network:
  transport: tcp
  address: collector.local:7070
  connect_timeout: 10s
  retry_interval: 1s
  write_timeout: 5s
  window: 200ms
  batch_size: 6
  low_threshold: 3
watchdog:
  timeout: 20s
  interval: 8s
metrics:
  listen: ":9100"
disarm_on_shutdown: false
`

const cfgCollector = `
listen: ":7070"
read_timeout: 2m
log:
  level: info
  format: json
metrics:
  listen: ":9101"
mqtt:
  broker: ""
  topic_prefix: sensenode
  client_id: sensenode-collector
  qos: 1
  connect_timeout: 10s
kafka:
  brokers: []
  topic: sensenode.telemetry
  batch_timeout: 100ms
`

var embeddedConfigs = map[string][]byte{
	"sim": []byte(cfgSim),
	"rpi": []byte(cfgRPi),
}

package config

// TailConfig is read by meter_tail, the live feed debug client.
type TailConfig struct {
	APIHost    string `toml:"api_host"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

type MeterAPIConfig struct {
	LogLevel string `toml:"log_level"`

	SerialDevice       string `toml:"serial_device"`
	Baudrate           uint   `toml:"baudrate"`
	DataBits           uint   `toml:"data_bits"`
	StopBits           uint   `toml:"stop_bits"`
	Parity             string `toml:"parity"`
	ReadTimeoutSeconds int    `toml:"read_timeout_seconds"`
	// Replay a captured telegram log instead of opening the serial device.
	ReplayFile string `toml:"replay_file"`
	// DSMR 4+ meters append a CRC16 after the "!" terminator.
	ChecksumEnabled bool `toml:"checksum_enabled"`

	// Empty means the default location in the data directory.
	DatabasePath string `toml:"database_path"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	SolarInverterIp         string `toml:"solar_inverter_ip"`
	SolarInverterModbusPort int    `toml:"solar_inverter_modbus_port"`
	// Should be named `preconfigured`
	// Check with `nmcli device status`
	WlanConnectionId string `toml:"wlan_connection_id"`

	// MQTT publishing is off while the broker is empty.
	MqttBroker   string `toml:"mqtt_broker"`
	MqttTopic    string `toml:"mqtt_topic"`
	MqttClientID string `toml:"mqtt_client_id"`
}

package config

// MatrixConfig configures the chat sync store.
type MatrixConfig struct {
	HomeserverURL     string `env:"MATRIX_HOMESERVER_URL" yaml:"homeserver_url" default:"https://matrix.org"`
	DeviceName        string `env:"MATRIX_DEVICE_NAME" yaml:"device_name" default:"bot manager console"`
	TimelineLimit     int    `env:"MATRIX_TIMELINE_LIMIT" yaml:"timeline_limit" default:"50"`
	AutoRegisterRooms bool   `env:"MATRIX_AUTO_REGISTER_ROOMS" yaml:"auto_register_rooms"`
}

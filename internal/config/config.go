// Package config provides configuration structures and defaults for the Digiscope client
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Device            DeviceConfig            `yaml:"device" mapstructure:"device"`                         // Instrument connection settings
	Acquisition       AcquisitionConfig       `yaml:"acquisition" mapstructure:"acquisition"`               // Oscilloscope acquisition settings
	FunctionGenerator FunctionGeneratorConfig `yaml:"function_generator" mapstructure:"function_generator"` // Function generator output
	Channels          ChannelsConfig          `yaml:"channels" mapstructure:"channels"`                     // Derived channel settings
	Display           DisplayConfig           `yaml:"display" mapstructure:"display"`                       // Output surfaces
	Logging           LoggingConfig           `yaml:"logging" mapstructure:"logging"`                       // Logging configuration
}

// DeviceConfig contains the transport used to reach the instrument
type DeviceConfig struct {
	Transport   string        `yaml:"transport" mapstructure:"transport"`       // Transport: "tcp" or "serial"
	Host        string        `yaml:"host" mapstructure:"host"`                 // Instrument host name or address (tcp)
	Port        int           `yaml:"port" mapstructure:"port"`                 // Instrument TCP port (tcp)
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"` // Connect timeout (tcp)
	SerialPort  string        `yaml:"serial_port" mapstructure:"serial_port"`   // Serial device path (serial)
	BaudRate    int           `yaml:"baud_rate" mapstructure:"baud_rate"`       // Serial baud rate (serial)
	QueueSize   int           `yaml:"queue_size" mapstructure:"queue_size"`     // Outbound frame queue depth
}

// AcquisitionConfig contains the settings sent to the instrument as one batch
type AcquisitionConfig struct {
	VoltsPerDivision string  `yaml:"volts_per_div" mapstructure:"volts_per_div"`           // e.g. "20mV", "1V"
	TimePerDivision  string  `yaml:"time_per_div" mapstructure:"time_per_div"`             // e.g. "1ms", "500µs"
	NumSamples       int     `yaml:"num_samples" mapstructure:"num_samples"`               // Samples per channel per burst
	SamplingMode     string  `yaml:"sampling_mode" mapstructure:"sampling_mode"`           // "8 bit" or "12 bit"
	TriggerThreshold float64 `yaml:"trigger_threshold" mapstructure:"trigger_threshold"`   // Trigger threshold in volts
	ChannelOffset    float64 `yaml:"channel_offset" mapstructure:"channel_offset"`         // Channel offset in volts
	TriggerType      string  `yaml:"trigger_type" mapstructure:"trigger_type"`             // "Rising", "Falling" or "Level"
	TriggerMode      string  `yaml:"trigger_mode" mapstructure:"trigger_mode"`             // "Auto", "Normal" or "Single"
	Coupling         string  `yaml:"coupling" mapstructure:"coupling"`                     // "AC" or "DC"
	ChannelToTrigger string  `yaml:"channel_to_trigger" mapstructure:"channel_to_trigger"` // "A" or "B"
	Bandpass         bool    `yaml:"bandpass" mapstructure:"bandpass"`                     // Bandpass sampling on channel A
}

// FunctionGeneratorConfig contains the function generator output settings
type FunctionGeneratorConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`           // Send settings at startup
	OutputOn   bool    `yaml:"output_on" mapstructure:"output_on"`       // Output enabled
	WaveType   string  `yaml:"wave_type" mapstructure:"wave_type"`       // "Sine", "Square", "Triangle", "Ramp" or "Noise"
	PeakToPeak float64 `yaml:"peak_to_peak" mapstructure:"peak_to_peak"` // Peak-to-peak voltage in volts
	Offset     float64 `yaml:"offset" mapstructure:"offset"`             // DC offset in volts
	Frequency  uint16  `yaml:"frequency" mapstructure:"frequency"`       // Output frequency in Hz
}

// ChannelsConfig contains the derived channel configuration
type ChannelsConfig struct {
	PlotA        bool   `yaml:"plot_a" mapstructure:"plot_a"`               // Plot channel A
	PlotB        bool   `yaml:"plot_b" mapstructure:"plot_b"`               // Plot channel B
	MathEquation string `yaml:"math_equation" mapstructure:"math_equation"` // Math channel equation, empty disables
	FilterFile   string `yaml:"filter_file" mapstructure:"filter_file"`     // Coefficient CSV, empty disables
	FilterInput  string `yaml:"filter_input" mapstructure:"filter_input"`   // Filter input: "A", "B" or "Math"
}

// DisplayConfig contains the output surfaces fed by the acquisition pipeline
type DisplayConfig struct {
	Console       bool   `yaml:"console" mapstructure:"console"`               // Print measurement labels
	WebsocketAddr string `yaml:"websocket_addr" mapstructure:"websocket_addr"` // Trace publisher listen address, empty disables
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // Log level (debug, info, warn, error)
	File   string `yaml:"file" mapstructure:"file"`     // Log file path, empty logs to stderr
	Format string `yaml:"format" mapstructure:"format"` // "json" or "console"
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Transport:   "tcp",           // Instrument bridges over TCP by default
			Host:        "localhost",     // Local instrument bridge
			Port:        5000,            // Default instrument port
			DialTimeout: 5 * time.Second, // 5 second connect timeout
			SerialPort:  "/dev/ttyUSB0",  // Common USB serial path
			BaudRate:    115200,          // Instrument UART rate
			QueueSize:   64,              // Outbound frame queue depth
		},
		Acquisition: AcquisitionConfig{
			VoltsPerDivision: "1V",
			TimePerDivision:  "1ms",
			NumSamples:       1000,
			SamplingMode:     "12 bit",
			TriggerThreshold: 0.0,
			ChannelOffset:    0.0,
			TriggerType:      "Rising",
			TriggerMode:      "Auto",
			Coupling:         "DC",
			ChannelToTrigger: "A",
			Bandpass:         false,
		},
		FunctionGenerator: FunctionGeneratorConfig{
			Enabled:  false, // Leave the generator untouched
			OutputOn: false,
			WaveType: "Sine",
		},
		Channels: ChannelsConfig{
			PlotA:       true,
			PlotB:       true,
			FilterInput: "A",
		},
		Display: DisplayConfig{
			Console:       true, // Print measurements to the terminal
			WebsocketAddr: "",   // No trace publisher
		},
		Logging: LoggingConfig{
			Level:  "info",    // Info level logging
			File:   "",        // Log to stderr
			Format: "console", // Human readable output
		},
	}
}

// Validate checks the settings that cannot be checked by the component
// consuming them
func (c *Config) Validate() error {
	switch c.Device.Transport {
	case "tcp":
		if c.Device.Host == "" {
			return fmt.Errorf("device host is required for tcp transport")
		}
		if c.Device.Port <= 0 || c.Device.Port > 65535 {
			return fmt.Errorf("invalid device port: %d", c.Device.Port)
		}
	case "serial":
		if c.Device.SerialPort == "" {
			return fmt.Errorf("serial port is required for serial transport")
		}
		if c.Device.BaudRate <= 0 {
			return fmt.Errorf("invalid baud rate: %d", c.Device.BaudRate)
		}
	default:
		return fmt.Errorf("invalid transport: %s (must be 'tcp' or 'serial')", c.Device.Transport)
	}

	if c.Device.QueueSize <= 0 {
		return fmt.Errorf("invalid queue size: %d", c.Device.QueueSize)
	}

	switch c.Channels.FilterInput {
	case "", "A", "B", "Math":
	default:
		return fmt.Errorf("invalid filter input: %s (must be 'A', 'B' or 'Math')", c.Channels.FilterInput)
	}

	return nil
}

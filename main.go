// Digiscope - client for the Digiscope USB/network oscilloscope
// This program configures the instrument, acquires sample bursts from both
// channels, derives the Math and Filter channels and reports measurements.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"digiscope-client/internal/channel"
	"digiscope-client/internal/config"
	"digiscope-client/internal/display"
	"digiscope-client/internal/dsp"
	"digiscope-client/internal/logging"
	"digiscope-client/internal/scope"
	"digiscope-client/internal/transport"
	"digiscope-client/internal/version"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Command line flag variables
var (
	cfgFile     string // Configuration file path
	verbose     bool   // Enable debug logging
	showVersion bool   // Print version information and exit
	bursts      int    // Stop after this many bursts, 0 runs until interrupted
	rearm       bool   // Re-arm the trigger after every burst
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "digiscope",
	Short: "Digiscope oscilloscope client",
	Long: `Digiscope connects to the oscilloscope over TCP or a serial line, applies
the acquisition and function generator settings, and reports measurements
for channels A and B and the derived Math and Filter channels.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersionInfo("Digiscope"))
			return
		}
		if err := runClient(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// init initializes the CLI flags and configuration
func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.DefaultConfig()

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().IntVarP(&bursts, "bursts", "n", 0, "stop after this many bursts (0 runs until interrupted)")
	rootCmd.Flags().BoolVar(&rearm, "rearm", false, "re-arm the trigger after every burst (normal and single modes)")

	// Instrument connection
	rootCmd.Flags().String("transport", defaults.Device.Transport, "transport: tcp or serial")
	rootCmd.Flags().StringP("host", "H", defaults.Device.Host, "instrument host (tcp)")
	rootCmd.Flags().IntP("port", "p", defaults.Device.Port, "instrument port (tcp)")
	rootCmd.Flags().String("serial-port", defaults.Device.SerialPort, "serial device (serial)")
	rootCmd.Flags().Int("baud", defaults.Device.BaudRate, "serial baud rate (serial)")

	// Acquisition
	rootCmd.Flags().String("volts-per-div", defaults.Acquisition.VoltsPerDivision, "vertical scale (20mV to 2V)")
	rootCmd.Flags().String("time-per-div", defaults.Acquisition.TimePerDivision, "horizontal scale (1us to 1s)")
	rootCmd.Flags().Int("samples", defaults.Acquisition.NumSamples, "samples per channel per burst")
	rootCmd.Flags().String("sampling-mode", defaults.Acquisition.SamplingMode, "sampling mode: \"8 bit\" or \"12 bit\"")
	rootCmd.Flags().String("trigger-mode", defaults.Acquisition.TriggerMode, "trigger mode: Auto, Normal or Single")
	rootCmd.Flags().Bool("bandpass", defaults.Acquisition.Bandpass, "bandpass sampling on channel A")

	// Derived channels
	rootCmd.Flags().String("math", defaults.Channels.MathEquation, "Math channel equation over A, B and F")
	rootCmd.Flags().String("filter", defaults.Channels.FilterFile, "filter coefficient CSV file")
	rootCmd.Flags().String("filter-input", defaults.Channels.FilterInput, "filter input: A, B or Math")

	// Output
	rootCmd.Flags().String("websocket", defaults.Display.WebsocketAddr, "serve traces over websocket on this address")
	rootCmd.Flags().String("log-level", defaults.Logging.Level, "log level (debug, info, warn, error)")

	// Bind command line flags to viper configuration keys
	viper.BindPFlag("device.transport", rootCmd.Flags().Lookup("transport"))
	viper.BindPFlag("device.host", rootCmd.Flags().Lookup("host"))
	viper.BindPFlag("device.port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("device.serial_port", rootCmd.Flags().Lookup("serial-port"))
	viper.BindPFlag("device.baud_rate", rootCmd.Flags().Lookup("baud"))
	viper.BindPFlag("acquisition.volts_per_div", rootCmd.Flags().Lookup("volts-per-div"))
	viper.BindPFlag("acquisition.time_per_div", rootCmd.Flags().Lookup("time-per-div"))
	viper.BindPFlag("acquisition.num_samples", rootCmd.Flags().Lookup("samples"))
	viper.BindPFlag("acquisition.sampling_mode", rootCmd.Flags().Lookup("sampling-mode"))
	viper.BindPFlag("acquisition.trigger_mode", rootCmd.Flags().Lookup("trigger-mode"))
	viper.BindPFlag("acquisition.bandpass", rootCmd.Flags().Lookup("bandpass"))
	viper.BindPFlag("channels.math_equation", rootCmd.Flags().Lookup("math"))
	viper.BindPFlag("channels.filter_file", rootCmd.Flags().Lookup("filter"))
	viper.BindPFlag("channels.filter_input", rootCmd.Flags().Lookup("filter-input"))
	viper.BindPFlag("display.websocket_addr", rootCmd.Flags().Lookup("websocket"))
	viper.BindPFlag("logging.level", rootCmd.Flags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	// DIGISCOPE_DEVICE_HOST overrides device.host and so on
	viper.SetEnvPrefix("digiscope")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// runClient is the main application logic
func runClient() error {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Settings are checked before anything touches the instrument
	settings, err := scope.ParseAcquisitionSettings(cfg.Acquisition)
	if err != nil {
		return err
	}
	var generator *scope.FunctionGenerator
	if cfg.FunctionGenerator.Enabled {
		g, err := scope.ParseFunctionGenerator(cfg.FunctionGenerator)
		if err != nil {
			return err
		}
		generator = &g
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logging.Sync(logger)

	screen := display.NewScreen()
	if cfg.Display.Console {
		screen.AddSink(display.NewConsole(os.Stdout))
	}
	if cfg.Display.WebsocketAddr != "" {
		hub := display.NewHub(logger)
		screen.AddSink(hub)
		go func() {
			if err := hub.ListenAndServe(cfg.Display.WebsocketAddr); err != nil {
				logger.Error("trace publisher stopped", zap.Error(err))
			}
		}()
		defer hub.Close()
		logger.Info("publishing traces", zap.String("addr", cfg.Display.WebsocketAddr))
	}

	s := scope.New(logger, screen, cfg.Device.QueueSize)
	if err := configureChannels(s, cfg.Channels); err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	open, err := transport.NewOpener(cfg.Device)
	if err != nil {
		return err
	}
	if err := s.Connect(ctx, open); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer s.Disconnect()

	logger.Info("connected",
		zap.String("transport", cfg.Device.Transport),
		zap.String("protocol", version.Protocol))

	if err := s.ApplyAcquisition(settings); err != nil {
		return err
	}
	if generator != nil {
		if err := s.ApplyFunctionGenerator(*generator); err != nil {
			return err
		}
	}
	if err := s.ForceTrigger(); err != nil {
		return err
	}

	return streamEvents(ctx, s, logger)
}

// configureChannels installs the filter and equation from the
// configuration. A filter fed by Math needs the equation in place first.
func configureChannels(s *scope.Scope, cfg config.ChannelsConfig) error {
	input := channel.A
	if cfg.FilterInput != "" {
		kind, err := channel.ParseKind(cfg.FilterInput)
		if err != nil {
			return err
		}
		input = kind
	}

	if cfg.FilterFile != "" {
		coeffs, err := dsp.LoadCoefficientsFile(cfg.FilterFile)
		if err != nil {
			return err
		}
		s.InstallFilter(coeffs)
		if input != channel.Math {
			if err := s.SetFilterInput(input); err != nil {
				return err
			}
		}
	}

	if cfg.MathEquation != "" {
		if _, err := s.SetMathEquation(cfg.MathEquation); err != nil {
			return err
		}
		if err := s.SetPlotted(channel.Math, true); err != nil {
			return err
		}
	}

	if cfg.FilterFile != "" {
		if input == channel.Math {
			if err := s.SetFilterInput(channel.Math); err != nil {
				return err
			}
		}
		if err := s.SetPlotted(channel.Filter, true); err != nil {
			return err
		}
	}

	if err := s.SetPlotted(channel.A, cfg.PlotA); err != nil {
		return err
	}
	return s.SetPlotted(channel.B, cfg.PlotB)
}

// streamEvents logs session events until interrupted, disconnected or the
// requested number of bursts has arrived
func streamEvents(ctx context.Context, s *scope.Scope, logger *zap.Logger) error {
	acquired := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\nReceived interrupt signal, shutting down...\n")
			return nil
		case e := <-s.Events():
			switch e.Type {
			case scope.BurstAcquired:
				acquired++
				if bursts > 0 && acquired >= bursts {
					logger.Info("acquisition complete", zap.Int("bursts", acquired))
					return nil
				}
				if rearm {
					if err := s.RearmTrigger(); err != nil {
						return err
					}
				}
			case scope.SettingEchoed:
				logger.Info("instrument setting",
					zap.Stringer("command", e.Command),
					zap.Float64("sampling_rate_hz", e.Session.SamplingRateHz),
					zap.Stringer("status", e.Session.DeviceStatus))
			case scope.Disconnected:
				if e.Err != nil && !errors.Is(e.Err, context.Canceled) {
					return fmt.Errorf("instrument disconnected: %w", e.Err)
				}
				logger.Info("instrument closed the connection")
				return nil
			}
		}
	}
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

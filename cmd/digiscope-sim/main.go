// Digiscope Simulator - software stand-in for the oscilloscope
// This program listens for a client over TCP, echoes settings the way the
// instrument does and answers triggers with synthetic sample bursts.
package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"digiscope-client/internal/config"
	"digiscope-client/internal/connection"
	"digiscope-client/internal/logging"
	"digiscope-client/internal/protocol"
	"digiscope-client/internal/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Command line flag variables
var (
	listenPort  int           // TCP port to listen on
	rateKHz     uint16        // Reported sampling rate in kHz
	signalHz    float64       // Frequency of the channel A test signal
	amplitude   float64       // Peak amplitude of the channel A test signal in volts
	autoPeriod  time.Duration // Burst period in auto trigger mode
	logLevel    string        // Log level
	showVersion bool          // Print version information and exit
)

var rootCmd = &cobra.Command{
	Use:   "digiscope-sim",
	Short: "Simulated Digiscope instrument",
	Long: `Digiscope Simulator accepts client connections and behaves like the
instrument: settings are echoed back, FORCE_TRIGGER and REARM_TRIGGER produce
a burst, and auto trigger mode produces bursts periodically. Channel A carries
a sine wave and channel B the function generator output.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersionInfo("Digiscope Simulator"))
			return
		}
		if err := runSimulator(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().IntVarP(&listenPort, "port", "p", 5000, "TCP port to listen on")
	rootCmd.Flags().Uint16Var(&rateKHz, "rate", 100, "reported sampling rate in kHz")
	rootCmd.Flags().Float64VarP(&signalHz, "frequency", "f", 1000, "channel A signal frequency in Hz")
	rootCmd.Flags().Float64VarP(&amplitude, "amplitude", "a", 1.0, "channel A peak amplitude in volts")
	rootCmd.Flags().DurationVar(&autoPeriod, "auto-period", 200*time.Millisecond, "burst period in auto trigger mode")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
}

func runSimulator() error {
	logger, err := logging.New(config.LoggingConfig{Level: logLevel, Format: "console"})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logging.Sync(logger)

	listener, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(listenPort)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	logger.Info("simulator listening", zap.String("addr", listener.Addr().String()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Printf("\nReceived interrupt signal, shutting down...\n")
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		logger.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))
		go newInstrument(conn, logger).run()
	}
}

// instrument is the state of one simulated session
type instrument struct {
	conn   net.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	numSamples  int
	triggerMode protocol.TriggerMode
	genOn       bool
	genWave     protocol.WaveType
	genP2P      float64
	genOffset   float64
	genFreq     float64
	phase       float64
}

func newInstrument(conn net.Conn, logger *zap.Logger) *instrument {
	return &instrument{
		conn:        conn,
		logger:      logger.With(zap.String("remote", conn.RemoteAddr().String())),
		numSamples:  1000,
		triggerMode: protocol.TriggerAuto,
	}
}

func (in *instrument) run() {
	defer in.conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go in.autoTrigger(stop)

	if err := in.write(protocol.NewFrame(protocol.SamplingRateCommand, rateKHz).Encode()); err != nil {
		return
	}

	var buf [protocol.FrameSize]byte
	for {
		if _, err := io.ReadFull(in.conn, buf[:]); err != nil {
			if !errors.Is(err, io.EOF) {
				in.logger.Warn("read failed", zap.Error(err))
			}
			in.logger.Info("client disconnected")
			return
		}
		if err := in.handle(protocol.Decode(buf)); err != nil {
			in.logger.Warn("write failed", zap.Error(err))
			return
		}
	}
}

func (in *instrument) write(b [protocol.FrameSize]byte) error {
	return in.writeBytes(b[:])
}

func (in *instrument) writeBytes(b []byte) error {
	in.writeMu.Lock()
	defer in.writeMu.Unlock()
	_, err := in.conn.Write(b)
	return err
}

// handle applies one command and echoes the settings the instrument reports
func (in *instrument) handle(f protocol.Frame) error {
	in.logger.Debug("command", zap.Stringer("command", f.Command), zap.Uint16("value", f.Value))

	in.mu.Lock()
	echo := true
	switch f.Command {
	case protocol.NumSamplesCommand:
		in.numSamples = int(f.Value)
		echo = false
	case protocol.TriggerModeCommand:
		in.triggerMode = protocol.TriggerMode(f.Value)
	case protocol.FuncGenOutputCommand:
		in.genOn = protocol.Switch(f.Value).On()
	case protocol.FuncGenWaveTypeCommand:
		in.genWave = protocol.WaveType(f.Value)
	case protocol.FuncGenP2PCommand:
		in.genP2P = protocol.FromMilliVolts(f.Signed())
	case protocol.FuncGenOffsetCommand:
		in.genOffset = protocol.FromMilliVolts(f.Signed())
	case protocol.FuncGenFrequencyCommand:
		in.genFreq = float64(f.Value)
	case protocol.TriggerThresholdCommand, protocol.TriggerTypeCommand, protocol.ChannelCouplingCommand:
	case protocol.ForceTriggerCommand, protocol.RearmTriggerCommand:
		in.mu.Unlock()
		return in.capture()
	default:
		echo = false
	}
	in.mu.Unlock()

	if echo {
		return in.write(f.Encode())
	}
	return nil
}

// autoTrigger captures periodically while the trigger mode is Auto
func (in *instrument) autoTrigger(stop <-chan struct{}) {
	ticker := time.NewTicker(autoPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			in.mu.Lock()
			auto := in.triggerMode == protocol.TriggerAuto
			in.mu.Unlock()
			if !auto {
				continue
			}
			if err := in.capture(); err != nil {
				return
			}
		}
	}
}

// capture sends one burst framed by device status reports
func (in *instrument) capture() error {
	in.mu.Lock()
	a, b := in.synthesize()
	single := in.triggerMode == protocol.TriggerSingle
	in.mu.Unlock()

	if err := in.write(protocol.NewFrame(protocol.DeviceStatusCommand, uint16(protocol.StatusTriggered)).Encode()); err != nil {
		return err
	}
	if err := in.writeBytes(connection.EncodeBurst(a, b, uint16(len(a)/2))); err != nil {
		return err
	}

	status := protocol.StatusArmed
	if single {
		status = protocol.StatusStopped
	}
	return in.write(protocol.NewFrame(protocol.DeviceStatusCommand, uint16(status)).Encode())
}

// synthesize produces the codes of one burst. Caller holds in.mu.
func (in *instrument) synthesize() ([]int16, []int16) {
	n := in.numSamples
	rate := float64(rateKHz) * 1000
	a := make([]int16, n)
	b := make([]int16, n)

	const mid = 1.65
	for i := 0; i < n; i++ {
		t := float64(i) / rate
		a[i] = voltsToCode(mid + amplitude*math.Sin(2*math.Pi*signalHz*t+in.phase))

		v := 0.0
		if in.genOn {
			v = in.genOffset + in.genP2P/2*waveform(in.genWave, in.genFreq*t)
		}
		b[i] = voltsToCode(mid + v)
	}

	// Consecutive bursts should not be identical
	in.phase = math.Mod(in.phase+0.7, 2*math.Pi)
	return a, b
}

// waveform returns a unit amplitude wave at the given cycle position
func waveform(w protocol.WaveType, cycles float64) float64 {
	frac := cycles - math.Floor(cycles)
	switch w {
	case protocol.WaveSquare:
		if frac < 0.5 {
			return 1
		}
		return -1
	case protocol.WaveTriangle:
		return 1 - 4*math.Abs(frac-0.5)
	case protocol.WaveRamp:
		return 2*frac - 1
	case protocol.WaveNoise:
		return 2*rand.Float64() - 1
	}
	return math.Sin(2 * math.Pi * cycles)
}

// voltsToCode is the inverse of protocol.CodeToVolts, clamped to the
// converter range
func voltsToCode(v float64) int16 {
	code := math.Round(v * 4095 / 3.3)
	return int16(math.Max(0, math.Min(4095, code)))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

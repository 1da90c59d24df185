// Digiscope Filter - offline filter and measurement tool
// This program applies a coefficient table (or the bandpass demodulator) to
// a recorded trace and prints the measurements before and after.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"digiscope-client/internal/channel"
	"digiscope-client/internal/display"
	"digiscope-client/internal/dsp"
	"digiscope-client/internal/version"

	"github.com/spf13/cobra"
)

// Command line flag variables
var (
	coeffFile    string  // Coefficient CSV file
	rateHz       float64 // Sampling rate of the trace in Hz
	bandpass     bool    // Demodulate instead of filtering
	outputFile   string  // Write the filtered trace here
	outputFormat string  // Report format: table or json
	showVersion  bool    // Print version information and exit
)

var rootCmd = &cobra.Command{
	Use:   "digiscope-filter [trace.csv]",
	Short: "Apply a filter to a recorded trace",
	Long: `Digiscope Filter reads a trace (one voltage per line, first column of a
CSV), runs it through a FIR or IIR coefficient table or the bandpass
demodulator, and prints min, max, peak-to-peak, mean, standard deviation and
dominant frequency for the input and the output.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			return nil
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersionInfo("Digiscope Filter"))
			return
		}
		if err := runFilter(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&coeffFile, "coefficients", "k", "", "filter coefficient CSV file")
	rootCmd.Flags().Float64VarP(&rateHz, "rate", "r", 100000, "sampling rate of the trace in Hz")
	rootCmd.Flags().BoolVar(&bandpass, "bandpass", false, "demodulate with the bandpass sampling chain instead of filtering")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the filtered trace to this file")
	rootCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "output format (table, json)")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
}

func runFilter(path string) error {
	if coeffFile == "" && !bandpass {
		return errors.New("either --coefficients or --bandpass is required")
	}

	in, err := readTrace(path)
	if err != nil {
		return err
	}

	var out []float64
	if bandpass {
		out = dsp.Demodulate(in, rateHz)
	} else {
		coeffs, err := dsp.LoadCoefficientsFile(coeffFile)
		if err != nil {
			return err
		}
		if out, err = coeffs.Apply(in); err != nil {
			return err
		}
	}

	if outputFile != "" {
		if err := writeTrace(outputFile, out); err != nil {
			return err
		}
	}

	// The demodulator output runs at the upsampled rate
	outRate := rateHz
	if bandpass {
		outRate = rateHz * dsp.UpsampleFactor
	}

	inStats := measure(in, rateHz)
	outStats := measure(out, outRate)

	switch outputFormat {
	case "json":
		return printJSON(inStats, outStats)
	case "table":
		console := display.NewConsole(os.Stdout)
		fmt.Printf("%s (%d samples)\n", path, len(in))
		console.Publish(display.Frame{Traces: []display.Trace{
			{Name: "input", Color: channel.New(channel.A).Color(), Stats: inStats},
			{Name: "output", Color: channel.New(channel.Filter).Color(), Stats: outStats, Bandpass: bandpass},
		}})
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func measure(samples []float64, rate float64) channel.Stats {
	s := channel.ComputeStatistics(samples)
	s.Frequency = channel.EstimateFrequency(samples, rate)
	return s
}

// readTrace reads the first column of every record. Lines starting with #
// and a non-numeric header row are skipped.
func readTrace(path string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var samples []float64
	for line := 1; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read trace: %w", err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			if len(samples) == 0 && line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, v)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("trace %s holds no samples", path)
	}
	return samples, nil
}

func writeTrace(path string, samples []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	w := csv.NewWriter(file)
	for _, v := range samples {
		if err := w.Write([]string{strconv.FormatFloat(v, 'g', -1, 64)}); err != nil {
			file.Close()
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}

// jsonStats mirrors channel.Stats with undefined values as null
type jsonStats struct {
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	P2P       *float64 `json:"p2p"`
	Mean      *float64 `json:"mean"`
	StdDev    *float64 `json:"std_dev"`
	Frequency *float64 `json:"frequency_hz"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func toJSON(s channel.Stats) jsonStats {
	return jsonStats{
		Min:       finite(s.Min),
		Max:       finite(s.Max),
		P2P:       finite(s.P2P),
		Mean:      finite(s.Mean),
		StdDev:    finite(s.StdDev),
		Frequency: finite(s.Frequency),
	}
}

func printJSON(in, out channel.Stats) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]jsonStats{
		"input":  toJSON(in),
		"output": toJSON(out),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command capture records desktop audio from the command line: system audio
// in loopback by default, the default microphone with --mic. Captured audio
// is written to a WAV file until the duration elapses or an interrupt
// arrives.
package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/voibo/desktop-audio-capture/internal/logutil"
	"github.com/voibo/desktop-audio-capture/pkg/capture"
	"github.com/voibo/desktop-audio-capture/pkg/frame"
)

func setViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")
	viper.SetDefault("channels", 2)
	viper.SetDefault("samplerate", 48000)
	viper.SetDefault("duration", 10*time.Second)
	viper.SetDefault("output", "capture.wav")
}

func loadConfig(configFilePath string) {
	setViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			slog.Debug("no config file found", "configFilePath", configFilePath)
		} else {
			slog.Error("error during config read", "err", err)
			os.Exit(1)
		}
	}
}

func main() {
	var configFilePath string

	rootCmd := &cobra.Command{
		Use:           "capture",
		Short:         "Capture desktop audio to a WAV file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadConfig(configFilePath)
			logFilePointer, err := logutil.ConfigureDefaultLogger(
				viper.GetString("loglevel"),
				viper.GetString("logfile"),
				slog.HandlerOptions{},
			)
			if err != nil {
				return fmt.Errorf("configuring logger: %w", err)
			}
			if logFilePointer != nil {
				cobra.OnFinalize(func() { logFilePointer.Close() })
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", "config.yaml", "path to the config file")
	rootCmd.PersistentFlags().String("loglevel", "info", "log level: none, error, warn, info, debug")
	rootCmd.PersistentFlags().String("logfile", "", "log to this file as JSON instead of stdout")
	viper.BindPFlag("loglevel", rootCmd.PersistentFlags().Lookup("loglevel"))
	viper.BindPFlag("logfile", rootCmd.PersistentFlags().Lookup("logfile"))

	rootCmd.AddCommand(newTargetsCmd(), newRecordCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List available capture targets and audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range capture.EnumerateTargets() {
				fmt.Printf("%-16s %s\n", t.Kind, t.Title)
			}

			devices, err := capture.EnumerateAudioDevices()
			if err != nil {
				return fmt.Errorf("enumerating audio devices: %w", err)
			}
			for _, d := range devices {
				fmt.Printf("%-16s %s\n", "audio device", d.Name)
			}
			return nil
		},
	}
}

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record desktop audio to a WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return record(
				viper.GetInt("channels"),
				viper.GetInt("samplerate"),
				viper.GetDuration("duration"),
				viper.GetString("output"),
				viper.GetBool("mic"),
			)
		},
	}
	cmd.Flags().Int("channels", 2, "delivered channel count (1 or 2)")
	cmd.Flags().Int("samplerate", 48000, "delivered sample rate in Hz")
	cmd.Flags().Duration("duration", 10*time.Second, "how long to record")
	cmd.Flags().String("output", "capture.wav", "output WAV file path")
	cmd.Flags().Bool("mic", false, "record the default microphone instead of system audio")
	viper.BindPFlag("channels", cmd.Flags().Lookup("channels"))
	viper.BindPFlag("samplerate", cmd.Flags().Lookup("samplerate"))
	viper.BindPFlag("duration", cmd.Flags().Lookup("duration"))
	viper.BindPFlag("output", cmd.Flags().Lookup("output"))
	viper.BindPFlag("mic", cmd.Flags().Lookup("mic"))
	return cmd
}

func record(channels, sampleRate int, duration time.Duration, output string, mic bool) error {
	outFile, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer outFile.Close()

	encoder := wav.NewEncoder(outFile, sampleRate, 16, channels, 1)

	cfg := capture.Config{
		Channels:   channels,
		SampleRate: sampleRate,
	}
	if mic {
		cfg.WindowID = capture.MicrophoneWindowID
	}

	registry := capture.NewRegistry(nil, slog.Default())
	handle := registry.NewHandle()

	// Chunks arrive on the capture worker; the encoder is not safe for
	// concurrent use, so marshal them through a single delivery channel.
	chunks := make(chan frame.AudioChunk, 64)
	exited := make(chan error, 1)

	onAudio := func(chunk frame.AudioChunk) {
		samples := make(frame.PCMFrame, len(chunk.Samples))
		copy(samples, chunk.Samples)
		chunk.Samples = samples
		select {
		case chunks <- chunk:
		default:
			slog.Warn("writer backlogged, chunk dropped", "frames", chunk.Frames)
		}
	}
	onExit := func(err error) {
		exited <- err
	}

	if err := registry.Start(handle, cfg, onAudio, nil, onExit); err != nil {
		return fmt.Errorf("starting capture: %w", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	slog.Info("recording", "output", output, "duration", duration, "mic", mic)

	var framesWritten int
	writeChunk := func(chunk frame.AudioChunk) error {
		buf := &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: chunk.Channels,
				SampleRate:  chunk.SampleRate,
			},
			SourceBitDepth: 16,
			Data:           make([]int, len(chunk.Samples)),
		}
		for i, v := range chunk.Samples {
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			buf.Data[i] = int(v * math.MaxInt16)
		}
		if err := encoder.Write(buf); err != nil {
			return err
		}
		framesWritten += chunk.Frames
		return nil
	}

	var captureErr error
loop:
	for {
		select {
		case chunk := <-chunks:
			if err := writeChunk(chunk); err != nil {
				captureErr = fmt.Errorf("writing output: %w", err)
				break loop
			}
		case err := <-exited:
			if err != nil {
				captureErr = err
			} else {
				slog.Info("capture stopped upstream")
			}
			break loop
		case <-interrupt:
			slog.Info("interrupted")
			break loop
		case <-deadline.C:
			break loop
		}
	}

	stopped := make(chan struct{})
	if err := registry.Release(handle, func() { close(stopped) }); err == nil {
		<-stopped
	}

	// Drain whatever the worker delivered before the stop completed.
	for {
		select {
		case chunk := <-chunks:
			if err := writeChunk(chunk); err != nil && captureErr == nil {
				captureErr = fmt.Errorf("writing output: %w", err)
			}
		default:
			if err := encoder.Close(); err != nil && captureErr == nil {
				captureErr = fmt.Errorf("finalizing output: %w", err)
			}
			slog.Info("recording finished", "frames", framesWritten, "output", output)
			return captureErr
		}
	}
}

// ABOUTME: Entry point for the Scream test sender
// ABOUTME: Streams a tone or MP3 file to a multicast group, or lists receivers
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/screamrx/screamrx/internal/discovery"
	"github.com/screamrx/screamrx/pkg/audio"
	"github.com/screamrx/screamrx/pkg/audio/resample"
	"github.com/screamrx/screamrx/pkg/scream"
	"github.com/screamrx/screamrx/pkg/sender"
)

var (
	profileName = flag.String("profile", scream.Current.Name, "Protocol profile (scream, legacy)")
	file        = flag.String("file", "", "MP3 file to stream. If not specified, sends a test tone")
	loop        = flag.Bool("loop", false, "Restart the file when it ends")
	rate        = flag.Int("rate", 48000, "Sample rate to send")
	channels    = flag.Int("channels", 2, "Tone channel count")
	freq        = flag.Float64("freq", 440, "Tone frequency in Hz")
	dest        = flag.String("dest", "", "Destination host:port (default: profile group)")
	iface       = flag.String("interface", "", "Network interface for multicast")
	ttl         = flag.Int("ttl", 1, "Multicast TTL")
	list        = flag.Bool("list", false, "List receivers advertised over mDNS and exit")
	debug       = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *list {
		if err := listReceivers(); err != nil {
			logger.Error("browse failed", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("sender failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	profile, err := scream.ProfileByName(*profileName)
	if err != nil {
		return err
	}

	src, err := openSource(profile)
	if err != nil {
		return err
	}
	defer src.Close()

	s, err := sender.New(sender.Config{
		Profile:   profile,
		Dest:      *dest,
		Interface: *iface,
		TTL:       *ttl,
		Logger:    logger,
	}, src)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Info("press Ctrl-C to stop")
	return s.Run(ctx)
}

func openSource(profile scream.Profile) (audio.Source, error) {
	target := *rate
	if profile.Name == scream.Legacy.Name {
		// legacy packets always describe 48kHz stereo
		target = int(scream.SampleRate(scream.LegacyHeader.RateCode))
	}

	if *file == "" {
		ch := *channels
		if profile.Name == scream.Legacy.Name {
			ch = int(scream.LegacyHeader.Channels)
		}
		return audio.NewToneSource(target, ch, *freq), nil
	}

	mp3, err := audio.OpenMP3(*file, *loop)
	if err != nil {
		return nil, err
	}
	return resample.NewSource(mp3, target), nil
}

func listReceivers() error {
	receivers, err := discovery.Browse(3 * time.Second)
	if err != nil {
		return err
	}
	if len(receivers) == 0 {
		fmt.Println("no receivers found")
		return nil
	}
	for _, r := range receivers {
		fmt.Printf("%s\t%s\n", r.Name, r.StatusURL())
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"image/color"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avplayer"
	"github.com/xaionaro-go/avplayer/audiosink/nullsink"
	"github.com/xaionaro-go/avplayer/colorconv"
	"github.com/xaionaro-go/avplayer/consumer/imageprocessor"
	"github.com/xaionaro-go/avplayer/consumer/snapshot"
	"github.com/xaionaro-go/avplayer/demuxer"
	"github.com/xaionaro-go/avplayer/demuxer/libav"
	"github.com/xaionaro-go/avplayer/demuxer/synthetic"
	"github.com/xaionaro-go/avplayer/frame"
	"github.com/xaionaro-go/avplayer/gpu"
	"github.com/xaionaro-go/avplayer/gpu/software"
	"github.com/xaionaro-go/avplayer/locator"
	avlogger "github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/xcontext"
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [options] <path-or-URL>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s [options] --synthetic\n\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	envFile := pflag.String("env-file", ".env", "a file with environment variables (AWS credentials, etc); ignored if missing")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	useSynthetic := pflag.Bool("synthetic", false, "play a generated test pattern instead of a file")
	syntheticDuration := pflag.Duration("synthetic-duration", 5*time.Second, "the duration of the generated test pattern")
	loop := pflag.Bool("loop", false, "restart the playback from the beginning once finished")
	actualSpeed := pflag.Bool("actual-speed", true, "pace frames by their timestamps; false drains the asset as fast as possible")
	playSound := pflag.Bool("sound", true, "play the audio track")
	volume := pflag.Float64("volume", 1, "the audio volume, 0..1")
	matrixName := pflag.String("color-matrix", "bt601-full", "YCbCr-to-RGB matrix: "+strings.Join(colorconv.MatrixNames(), ", "))
	rotation := pflag.Int("rotation", 0, "the rotation consumers should apply, in degrees (multiple of 90)")
	benchmark := pflag.Bool("benchmark", false, "log the average conversion time at the end of each pass")
	blurRadius := pflag.Float64("blur", 0, "apply a Gaussian blur of the given radius to every frame")
	snapshotPath := pflag.String("snapshot", "", "save the last emitted frame into this PNG file on exit")
	cacheDir := pflag.String("cache-dir", filepath.Join(os.TempDir(), "avplay"), "where to keep objects downloaded from S3")
	authKey := pflag.String("auth-key", "", "a secret appended to the input URL")
	statsInterval := pflag.Duration("stats-interval", time.Second, "how often to print statistics; 0 disables")
	pflag.Parse()
	if (*useSynthetic && pflag.NArg() != 0) || (!*useSynthetic && pflag.NArg() != 1) {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	avlogger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(ctx)
	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		l.Warnf("unable to load '%s': %v", *envFile, err)
	}

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	matrix, err := colorconv.MatrixByName(*matrixName)
	if err != nil {
		l.Fatal(err)
	}
	orientation, err := frame.OrientationFromDegrees(*rotation)
	if err != nil {
		l.Fatal(err)
	}

	var (
		dmx   demuxer.Demuxer
		asset demuxer.Asset
	)
	if *useSynthetic {
		cfg := synthetic.DefaultConfig()
		cfg.Width, cfg.Height = 640, 360
		cfg.Duration = *syntheticDuration
		cfg.Color = color.RGBA{R: 0x30, G: 0x90, B: 0xd0, A: 0xff}
		audioCfg := synthetic.DefaultAudioConfig()
		cfg.Audio = &audioCfg
		dmx, asset = synthetic.New(), synthetic.NewAsset(cfg)
	} else {
		avlogger.BridgeAstiav(l)
		loc := locator.New(*cacheDir, locator.S3ConfigFromEnv())
		resolved, err := loc.Resolve(ctx, pflag.Arg(0))
		if err != nil {
			l.Fatal(err)
		}
		dmx, asset = libav.New(), libav.NewAsset(resolved, secret.New(*authKey), locator.InputOptions(resolved))
	}

	pipeline := software.New()
	executor := gpu.NewExecutor(ctx)
	defer executor.Close(xcontext.DetachDone(ctx))

	finished := make(chan struct{}, 1)
	p := avplayer.New(
		dmx, asset, pipeline, executor,
		avplayer.OptionPlayAtActualSpeed(*actualSpeed),
		avplayer.OptionLoop(*loop),
		avplayer.OptionPlaySound(*playSound),
		avplayer.OptionSoundVolume(*volume),
		avplayer.OptionAudioSink(nullsink.New()),
		avplayer.OptionColorMatrix(matrix),
		avplayer.OptionOrientation(orientation),
		avplayer.OptionRunBenchmark(*benchmark),
		avplayer.OptionOnFinish(func(ctx context.Context) {
			l.Infof("reached the end of %s", asset)
			select {
			case finished <- struct{}{}:
			default:
			}
		}),
		avplayer.OptionOnFail(func(ctx context.Context, err error) {
			l.Errorf("playback failed: %v", err)
		}),
	)

	var sink frame.Consumer
	var snap *snapshot.Snapshot
	if *snapshotPath != "" {
		snap = snapshot.New(executor, true)
		sink = snap
	}
	if *blurRadius > 0 {
		sink = imageprocessor.NewConsumer(imageprocessor.NewGaussianBlur(*blurRadius), pipeline, executor, sink)
	}
	if sink == nil {
		sink = &frame.FuncConsumer{
			Name: "discard",
			Func: func(ctx context.Context, f *frame.Converted) error {
				f.Release()
				return nil
			},
		}
	}
	p.Targets.Add(ctx, sink)

	if err := p.Start(ctx); err != nil {
		l.Fatal(err)
	}

	var statsC <-chan time.Time
	if *statsInterval > 0 {
		t := time.NewTicker(*statsInterval)
		defer t.Stop()
		statsC = t.C
	}

	waitC := make(chan error, 1)
	observability.Go(ctx, func(ctx context.Context) {
		waitC <- p.Wait(xcontext.DetachDone(ctx))
	})

waitLoop:
	for {
		select {
		case <-ctx.Done():
			l.Debugf("interrupted")
			break waitLoop
		case <-finished:
			if !*loop {
				break waitLoop
			}
		case err := <-waitC:
			if err != nil {
				l.Errorf("%v", err)
			}
			break waitLoop
		case <-statsC:
			printStats(p.GetStats())
		}
	}

	if err := p.Cancel(xcontext.DetachDone(ctx)); err != nil {
		l.Errorf("unable to cancel the playback: %v", err)
	}
	printStats(p.GetStats())

	if snap != nil {
		if err := snap.Save(xcontext.DetachDone(ctx), *snapshotPath); err != nil {
			l.Errorf("%v", err)
		}
	}
}

func printStats(s *avplayer.Statistics) {
	fmt.Printf(
		"t=%s frames=%s emitted=%s dropped=%s audio=%s/%s passes=%s fps=%s conv=%s pacing=%s\n",
		s.CurrentTime.Truncate(time.Millisecond),
		humanize.Comma(int64(s.VideoSamplesRead)),
		humanize.Comma(int64(s.FramesEmitted)),
		humanize.Comma(int64(s.FramesDropped)),
		humanize.Comma(int64(s.AudioBuffersForwarded)),
		humanize.Comma(int64(s.AudioBuffersDropped)),
		humanize.Comma(int64(s.PassesCompleted)),
		humanize.FtoaWithDigits(s.EmittedFPS, 1),
		s.AverageConversionTime,
		s.PacingSource,
	)
}

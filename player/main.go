// drmplay plays an animated test pattern or an image sequence straight to a
// KMS display, with pause/resume controls and VT switch handling.
package main

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drmplay/kms"
	"drmplay/present"
	"drmplay/render"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	handler, err := newColorHandler(cfg.Debug, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(handler)
	kms.SetLogger(logger)
	present.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(cfg *Config, logger *slog.Logger) error {
	// VT handoff is best effort: without a controlling VT (ssh session,
	// systemd unit) playback still works, it just can't share the console.
	vt, err := kms.NewVTSwitcher()
	if err != nil {
		logger.Warn("VT switching unavailable", "err", err)
		vt = nil
	} else {
		defer vt.Destroy()
	}

	card, err := kms.Open(cfg.Device)
	if err != nil {
		return err
	}
	defer card.Close()

	pipe, err := card.NewPipeline(kms.PipelineConfig{
		Connector: cfg.Connector,
		Mode:      cfg.Mode,
	})
	if err != nil {
		return err
	}
	defer pipe.Close()

	// Format negotiation: alpha variant preferred, opaque fallback.
	opaque, err := cfg.ScanoutFormat()
	if err != nil {
		return err
	}
	format, err := kms.PickFormat(pipe.PlaneFormats(), kms.FormatPairFor(opaque))
	if err != nil {
		return err
	}

	// Modifier negotiation is best effort; no modifiers means the buffers
	// use their implicit layout.
	var modifiers []uint64
	if blob, err := pipe.InFormats(); err != nil {
		logger.Warn("reading plane IN_FORMATS failed", "err", err)
	} else if blob != nil {
		modifiers, err = kms.ParseFormatModifiers(blob, format)
		if err != nil {
			logger.Warn("parsing IN_FORMATS failed", "err", err)
		}
	}
	logger.Info("negotiated scanout",
		"format", kms.FormatName(format), "modifiers", len(modifiers))

	drawW, drawH, err := cfg.DrawSize()
	if err != nil {
		return err
	}
	if drawW == 0 || drawH == 0 {
		drawW, drawH = pipe.ModeSize()
	}

	surface, err := render.NewSurface(card, uint32(drawW), uint32(drawH), format, modifiers)
	if err != nil {
		return err
	}
	defer surface.Close()

	engine := present.NewEngine(pipe, surface, surface, present.Config{
		Depth:      cfg.Depth,
		VRR:        cfg.VRRMode(),
		DrawWidth:  drawW,
		DrawHeight: drawH,
	})

	if vt != nil {
		vt.OnRelease(engine.ReleaseVT)
		vt.OnAcquire(engine.AcquireVT)
	}

	var source frameSource
	if cfg.Images != "" {
		source, err = newImageSequence(cfg.Images)
		if err != nil {
			return err
		}
	} else {
		source = newTestPattern(drawW, drawH)
	}

	renderFrame := func(n int) {
		engine.BeginFrame()
		canvas, err := surface.Canvas()
		if err != nil {
			logger.Error("no canvas for frame", "err", err)
			return
		}
		canvas.Clear(color.Black)
		canvas.Blit(source.Frame(n))
		engine.SubmitFrame(source.Still(n))
		engine.SwapBuffers()
	}

	// First frame goes up with the modeset itself.
	canvas, err := surface.Canvas()
	if err != nil {
		return err
	}
	canvas.Clear(color.Black)
	canvas.Blit(source.Frame(0))
	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Shutdown()

	fbW, fbH := engine.FramebufferSize()
	logger.Info("presenting",
		"fb", fmt.Sprintf("%dx%d", fbW, fbH),
		"display", fmt.Sprintf("%.2fHz", engine.DisplayFPS()))

	kb, err := startKeyboard()
	if err != nil {
		logger.Warn("keyboard controls unavailable", "err", err)
	} else {
		defer kb.Close()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	fps := cfg.FPS
	if fps <= 0 {
		fps = engine.DisplayFPS()
	}
	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	paused := false
	frame := 1
	for {
		if vt != nil {
			vt.Poll(0)
		}

		var actions chan action
		if kb != nil {
			actions = kb.actions
		}

		select {
		case <-sigs:
			logger.Info("interrupted, shutting down")
			return nil
		case a := <-actions:
			switch a {
			case actionQuit:
				swapped, dropped := surface.Stats()
				logger.Info("quitting", "frames", swapped, "dropped", dropped)
				return nil
			case actionTogglePause:
				if paused {
					paused = false
					engine.Resume()
					logger.Info("resumed")
				} else {
					paused = true
					engine.Pause()
					// One more swap drains the queue down to the
					// frame on display.
					renderFrame(frame)
					logger.Info("paused")
				}
			case actionVsyncInfo:
				info := engine.VsyncInfo()
				logger.Info("vsync",
					"duration", info.Duration,
					"skipped", info.Skipped,
					"last", info.LastDisplay.Format("15:04:05.000"))
			}
		case <-ticker.C:
			if paused {
				continue
			}
			renderFrame(frame)
			frame++
		}
	}
}

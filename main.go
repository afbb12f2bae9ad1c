// drmview shows a single image fullscreen on a KMS display and holds it
// until interrupted. It is the minimal exercise of the presentation stack:
// one modeset, one framebuffer, a drained swapchain.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/disintegration/imaging"

	"drmplay/kms"
	"drmplay/present"
	"drmplay/render"
)

func main() {
	device := flag.String("device", kms.DefaultCardPath, "DRM device node")
	connector := flag.String("connector", "", "Connector name, e.g. HDMI-A-1 (default: first connected)")
	mode := flag.String("mode", "", "Mode: preferred, highest, WxH or WxH@Hz")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <path_to_image>\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	kms.SetLogger(logger)
	present.SetLogger(logger)

	if err := show(*device, *connector, *mode, flag.Arg(0), logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func show(device, connector, mode, imagePath string, logger *slog.Logger) error {
	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("loading image: %w", err)
	}

	card, err := kms.Open(device)
	if err != nil {
		return err
	}
	defer card.Close()

	pipe, err := card.NewPipeline(kms.PipelineConfig{Connector: connector, Mode: mode})
	if err != nil {
		return err
	}
	defer pipe.Close()

	format, err := kms.PickFormat(pipe.PlaneFormats(), kms.FormatPairFor(kms.FormatXRGB8888))
	if err != nil {
		return err
	}

	w, h := pipe.ModeSize()
	surface, err := render.NewSurface(card, uint32(w), uint32(h), format, nil)
	if err != nil {
		return err
	}
	defer surface.Close()

	engine := present.NewEngine(pipe, surface, surface, present.Config{})

	canvas, err := surface.Canvas()
	if err != nil {
		return err
	}
	canvas.Clear(color.Black)
	canvas.Blit(imaging.Fit(img, w, h, imaging.Lanczos))

	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Shutdown()

	logger.Info("image on screen, press Ctrl-C to exit",
		"image", imagePath, "mode", fmt.Sprintf("%dx%d", w, h))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs
	logger.Info("terminating, restoring display")
	return nil
}

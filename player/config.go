package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"drmplay/kms"
	"drmplay/present"
)

type Config struct {
	Debug     bool
	Device    string
	Connector string
	Mode      string
	Format    string
	Size      string
	Depth     int
	VRR       int
	FPS       float64
	Images    string
	LogFile   string
}

func parseFlags() (*Config, error) {
	cfg := &Config{}

	// Define flags
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug output")
	flag.StringVar(&cfg.Device, "device", kms.DefaultCardPath, "DRM device node")
	flag.StringVar(&cfg.Connector, "connector", "", "Connector name, e.g. HDMI-A-1 (default: first connected)")
	flag.StringVar(&cfg.Mode, "mode", "", "Mode: preferred, highest, WxH or WxH@Hz")
	flag.StringVar(&cfg.Format, "format", "xrgb8888", "Scanout format: xrgb8888 or xbgr8888")
	flag.StringVar(&cfg.Size, "size", "", "Draw surface size WxH (default: mode size, plane scales)")
	flag.IntVar(&cfg.Depth, "depth", 1, "Swapchain depth")
	flag.IntVar(&cfg.VRR, "vrr", -1, "Variable refresh: -1 auto, 0 off, 1 force")
	flag.Float64Var(&cfg.FPS, "fps", 0, "Playback rate (default: display rate)")
	flag.StringVar(&cfg.Images, "images", "", "Directory of images to play as a sequence (default: test pattern)")
	flag.StringVar(&cfg.LogFile, "logfile", "", "Path to log file (optional, if not specified logs only go to console)")

	// Handle both --flag and -flag formats
	flag.BoolVar(&cfg.Debug, "d", false, "Enable debug output (shorthand)")
	flag.StringVar(&cfg.Connector, "c", "", "Connector name (shorthand)")
	flag.StringVar(&cfg.Mode, "m", "", "Mode (shorthand)")
	flag.StringVar(&cfg.Images, "i", "", "Image directory (shorthand)")
	flag.StringVar(&cfg.LogFile, "l", "", "Path to log file (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nKeys during playback:\n")
		fmt.Fprintf(os.Stderr, "  space  pause / resume\n")
		fmt.Fprintf(os.Stderr, "  v      print vsync info\n")
		fmt.Fprintf(os.Stderr, "  q/ESC  quit\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --debug --logfile /var/log/drmplay.log\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c HDMI-A-1 -m 1920x1080@60 -i ./frames\n", os.Args[0])
	}

	flag.Parse()

	if _, err := cfg.ScanoutFormat(); err != nil {
		return nil, err
	}
	if cfg.Depth < 1 {
		return nil, fmt.Errorf("depth must be at least 1")
	}
	if cfg.Images != "" {
		if _, err := os.Stat(cfg.Images); err != nil {
			return nil, fmt.Errorf("image directory: %w", err)
		}
	}

	return cfg, nil
}

// ScanoutFormat resolves the -format flag to the opaque fourcc.
func (cfg *Config) ScanoutFormat() (uint32, error) {
	switch strings.ToLower(cfg.Format) {
	case "xrgb8888", "":
		return kms.FormatXRGB8888, nil
	case "xbgr8888":
		return kms.FormatXBGR8888, nil
	case "xrgb2101010":
		return kms.FormatXRGB2101010, nil
	case "xbgr2101010":
		return kms.FormatXBGR2101010, nil
	default:
		return 0, fmt.Errorf("unknown format %q", cfg.Format)
	}
}

// DrawSize resolves the -size override; zeros mean the mode size.
func (cfg *Config) DrawSize() (int, int, error) {
	if cfg.Size == "" {
		return 0, 0, nil
	}
	var w, h int
	if _, err := fmt.Sscanf(cfg.Size, "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("bad size %q: %w", cfg.Size, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("bad size %q", cfg.Size)
	}
	return w, h, nil
}

// VRRMode maps the -vrr flag onto the engine's setting.
func (cfg *Config) VRRMode() present.VRRMode {
	switch {
	case cfg.VRR > 0:
		return present.VRROn
	case cfg.VRR == 0:
		return present.VRROff
	default:
		return present.VRRAuto
	}
}

package kms

import (
	"math"
	"testing"
)

func testMode(name string, w, h uint16, clock uint32, htotal, vtotal uint16, flags, typ uint32) ModeInfo {
	m := ModeInfo{
		Clock:    clock,
		Hdisplay: w,
		Htotal:   htotal,
		Vdisplay: h,
		Vtotal:   vtotal,
		Flags:    flags,
		Type:     typ,
	}
	copy(m.name[:], name)
	return m
}

// 1920x1080@60: pixel clock 148.5MHz, 2200x1125 total.
func mode1080p60() ModeInfo {
	return testMode("1920x1080", 1920, 1080, 148500, 2200, 1125, 0, ModeTypePreferred)
}

func TestModeRefresh_Math(t *testing.T) {
	tests := []struct {
		name string
		mode ModeInfo
		want float64
	}{
		{"progressive", testMode("1920x1080", 1920, 1080, 148500, 2200, 1125, 0, 0), 60.0},
		{"interlaced", testMode("1920x1080i", 1920, 1080, 74250, 2200, 1125, ModeFlagInterlace, 0), 60.0},
		{"doublescan", testMode("720x400", 720, 400, 35500, 936, 446, ModeFlagDblScan, 0), 42.52},
		{"zero timings", ModeInfo{}, 0},
	}
	for _, tt := range tests {
		got := tt.mode.Refresh()
		if math.Abs(got-tt.want) > 0.05 {
			t.Errorf("%s: got %.2fHz, want %.2fHz", tt.name, got, tt.want)
		}
	}
}

func TestModeName(t *testing.T) {
	m := mode1080p60()
	if m.Name() != "1920x1080" {
		t.Errorf("got %q, want %q", m.Name(), "1920x1080")
	}
}

func TestConnectorName(t *testing.T) {
	conn := &Connector{Type: 11, TypeID: 1}
	if conn.Name() != "HDMI-A-1" {
		t.Errorf("got %q, want %q", conn.Name(), "HDMI-A-1")
	}
	conn = &Connector{Type: 99, TypeID: 2}
	if conn.Name() != "Unknown99-2" {
		t.Errorf("got %q, want %q", conn.Name(), "Unknown99-2")
	}
}

func TestFindMode(t *testing.T) {
	conn := &Connector{
		Type:   11,
		TypeID: 1,
		Modes: []ModeInfo{
			testMode("3840x2160", 3840, 2160, 594000, 4400, 2250, 0, 0),               // 60Hz
			mode1080p60(),                                                             // preferred
			testMode("1920x1080", 1920, 1080, 74250, 2200, 1125, 0, 0),                // 30Hz
			testMode("1280x720", 1280, 720, 74250, 1650, 750, 0, 0),                   // 60Hz
		},
	}

	tests := []struct {
		spec      string
		wantW     uint16
		wantHz    float64
		wantError bool
	}{
		{"", 1920, 60, false},
		{"preferred", 1920, 60, false},
		{"highest", 3840, 60, false},
		{"1280x720", 1280, 60, false},
		{"1920x1080@30", 1920, 30, false},
		{"1920x1080@60", 1920, 60, false},
		{"640x480", 0, 0, true},
		{"garbage", 0, 0, true},
	}
	for _, tt := range tests {
		m, err := conn.FindMode(tt.spec)
		if tt.wantError {
			if err == nil {
				t.Errorf("spec %q: expected an error", tt.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("spec %q: %v", tt.spec, err)
			continue
		}
		if m.Hdisplay != tt.wantW {
			t.Errorf("spec %q: got width %d, want %d", tt.spec, m.Hdisplay, tt.wantW)
		}
		if math.Abs(m.Refresh()-tt.wantHz) > 0.5 {
			t.Errorf("spec %q: got %.2fHz, want %.0fHz", tt.spec, m.Refresh(), tt.wantHz)
		}
	}
}

func TestFindMode_NoModes(t *testing.T) {
	conn := &Connector{Type: 11, TypeID: 1}
	if _, err := conn.FindMode(""); err == nil {
		t.Error("expected an error for a connector without modes")
	}
	if _, err := conn.FindMode("highest"); err == nil {
		t.Error("expected an error for a connector without modes")
	}
}

func TestPreferredMode_FallsBackToFirst(t *testing.T) {
	conn := &Connector{
		Type:   10,
		TypeID: 1,
		Modes: []ModeInfo{
			testMode("1280x720", 1280, 720, 74250, 1650, 750, 0, 0),
			testMode("1920x1080", 1920, 1080, 148500, 2200, 1125, 0, 0),
		},
	}
	m, err := conn.PreferredMode()
	if err != nil {
		t.Fatalf("PreferredMode failed: %v", err)
	}
	if m.Hdisplay != 1280 {
		t.Errorf("got %s, want the first mode", m.Name())
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charlie0129/psmon/pkg/calibration"
	"github.com/charlie0129/psmon/pkg/utils/ptr"
)

func TestDefaults(t *testing.T) {
	f := NewFileFromConfig(nil, "")

	refs := f.References()
	want := calibration.References{LowVoltage: 1.5, HighVoltage: 13.5, LowCurrent: 100, HighCurrent: 900}
	if refs != want {
		t.Fatalf("expected default references %+v, got %+v", want, refs)
	}
	if f.SensorAddress() != 0x40 {
		t.Fatalf("expected default sensor address 0x40, got 0x%02x", f.SensorAddress())
	}
	if f.RecalibrationCron() != "" {
		t.Fatalf("recalibration reminder should be disabled by default")
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestReferencesFollowFullScale(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{
		MaxVoltage: ptr.To(30.0),
		LowCurrent: ptr.To(50.0),
	}, "")

	refs := f.References()
	if refs.LowVoltage != 3 || refs.HighVoltage != 27 {
		t.Fatalf("voltage references should follow full scale, got %+v", refs)
	}
	if refs.LowCurrent != 50 || refs.HighCurrent != 900 {
		t.Fatalf("explicit current reference should be kept, got %+v", refs)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  *RawFileConfig
		ok   bool
	}{
		{"defaults", &RawFileConfig{}, true},
		{"low above high", &RawFileConfig{LowVoltage: ptr.To(14.0)}, false},
		{"high above full scale", &RawFileConfig{HighCurrent: ptr.To(1200.0)}, false},
		{"zero reference", &RawFileConfig{LowCurrent: ptr.To(0.0)}, false},
		{"bad address", &RawFileConfig{SensorAddress: ptr.To(uint16(0x20))}, false},
		{"bad averaging", &RawFileConfig{AveragingCount: ptr.To(3)}, false},
		{"bad cron", &RawFileConfig{RecalibrationCron: ptr.To("every tuesday")}, false},
		{"good cron", &RawFileConfig{RecalibrationCron: ptr.To("@every 720h")}, true},
		{"empty record path", &RawFileConfig{RecordPath: ptr.To("")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFileFromConfig(tt.raw, "").Validate()
			if tt.ok && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "psmon.json")

	f := NewFileFromConfig(&RawFileConfig{PanelPort: ptr.To("/dev/ttyUSB0")}, path)
	f.SetReferences(calibration.References{LowVoltage: 2, HighVoltage: 12, LowCurrent: 10, HighCurrent: 500})
	f.SetRecalibrationCron("@monthly")
	f.SetAllowNonRootAccess(true)
	if err := f.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if loaded.References() != f.References() {
		t.Fatalf("references not persisted: %+v", loaded.References())
	}
	if loaded.RecalibrationCron() != "@monthly" || loaded.PanelPort() != "/dev/ttyUSB0" || !loaded.AllowNonRootAccess() {
		t.Fatalf("fields not persisted: %v", loaded.LogrusFields())
	}
}

func TestLoadMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()

	missing, err := NewFile(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("missing file should load defaults: %v", err)
	}
	if missing.MaxVoltage() != 15 {
		t.Fatalf("expected default full scale, got %v", missing.MaxVoltage())
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(empty); err != nil {
		t.Fatalf("empty file should load defaults: %v", err)
	}

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(broken); err == nil {
		t.Fatalf("expected error for malformed file")
	}
}

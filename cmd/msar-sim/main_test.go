package main

import (
	"strings"
	"testing"

	"github.com/banshee-data/markovswitch/internal/msar"
)

func TestBuildSimConfig(t *testing.T) {
	cfg, err := buildSimConfig(100, 20, 7, "0.5,-0.8", "0.6;0.2", "0.4,1.1", "0.95,0.05;0.1,0.9")
	if err != nil {
		t.Fatalf("buildSimConfig: %v", err)
	}

	if cfg.Nobs != 100 || cfg.Burn != 20 || cfg.Seed != 7 {
		t.Errorf("unexpected shape fields: %+v", cfg)
	}
	if len(cfg.Const) != 2 || cfg.Const[1] != -0.8 {
		t.Errorf("Const = %v", cfg.Const)
	}
	if len(cfg.AR) != 2 || len(cfg.AR[0]) != 1 || cfg.AR[1][0] != 0.2 {
		t.Errorf("AR = %v", cfg.AR)
	}
	if len(cfg.Transition) != 2 || cfg.Transition[0][1] != 0.05 {
		t.Errorf("Transition = %v", cfg.Transition)
	}

	// The config must be accepted by the simulator as-is.
	if _, _, err := msar.Simulate(cfg); err != nil {
		t.Errorf("Simulate rejected built config: %v", err)
	}
}

func TestBuildSimConfigNoAR(t *testing.T) {
	cfg, err := buildSimConfig(50, 10, 1, "1.0,-1.0", "", "0.5,0.5", "0.9,0.1;0.1,0.9")
	if err != nil {
		t.Fatalf("buildSimConfig: %v", err)
	}
	if len(cfg.AR) != 2 {
		t.Fatalf("AR rows = %d, want one empty row per regime", len(cfg.AR))
	}
	for i, row := range cfg.AR {
		if len(row) != 0 {
			t.Errorf("AR[%d] = %v, want empty", i, row)
		}
	}
}

func TestBuildSimConfigErrors(t *testing.T) {
	tests := []struct {
		name                            string
		consts, ar, stddevs, transition string
	}{
		{"empty const", "", "0.6;0.2", "0.4,1.1", "0.9,0.1;0.1,0.9"},
		{"bad const", "0.5,x", "0.6;0.2", "0.4,1.1", "0.9,0.1;0.1,0.9"},
		{"bad ar", "0.5,-0.8", "0.6;y", "0.4,1.1", "0.9,0.1;0.1,0.9"},
		{"bad stddev", "0.5,-0.8", "0.6;0.2", "0.4,z", "0.9,0.1;0.1,0.9"},
		{"bad transition", "0.5,-0.8", "0.6;0.2", "0.4,1.1", "0.9,q;0.1,0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildSimConfig(100, 10, 1, tt.consts, tt.ar, tt.stddevs, tt.transition); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestWriteSeries(t *testing.T) {
	cfg := msar.DefaultSimConfig()
	cfg.Nobs = 5
	series, states, err := msar.Simulate(cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	var plain strings.Builder
	if err := writeSeries(&plain, cfg, series, states, false); err != nil {
		t.Fatalf("writeSeries: %v", err)
	}
	lines := strings.Split(strings.TrimRight(plain.String(), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want header plus 5 observations", len(lines))
	}
	if !strings.HasPrefix(lines[0], "# msar-sim:") {
		t.Errorf("missing header, got %q", lines[0])
	}
	if strings.Contains(lines[1], ",") {
		t.Errorf("unexpected states column in %q", lines[1])
	}

	var withStates strings.Builder
	if err := writeSeries(&withStates, cfg, series, states, true); err != nil {
		t.Fatalf("writeSeries with states: %v", err)
	}
	stateLines := strings.Split(strings.TrimRight(withStates.String(), "\n"), "\n")
	if len(stateLines) != 7 {
		t.Fatalf("got %d lines, want two headers plus 5 observations", len(stateLines))
	}
	for _, line := range stateLines[2:] {
		if !strings.Contains(line, ",") {
			t.Errorf("line %q is missing the regime column", line)
		}
	}
}

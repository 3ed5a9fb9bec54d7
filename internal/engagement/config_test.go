package engagement

import (
	"math"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig(Options{})
	if !cfg.HeartbeatsEnabled {
		t.Error("heartbeats should be enabled when unset")
	}
	if cfg.HeartbeatInterval != 5500*time.Millisecond {
		t.Errorf("HeartbeatInterval = %v, want 5.5s", cfg.HeartbeatInterval)
	}
	if cfg.ActiveTimeout != 5*time.Second {
		t.Errorf("ActiveTimeout = %v, want 5s", cfg.ActiveTimeout)
	}
	if cfg.SampleInterval != 100*time.Millisecond {
		t.Errorf("SampleInterval = %v, want 100ms", cfg.SampleInterval)
	}
}

func TestNewConfigEnableHeartbeats(t *testing.T) {
	tests := []struct {
		name string
		opt  *bool
		want bool
	}{
		{"unset", nil, true},
		{"true", Bool(true), true},
		{"false", Bool(false), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewConfig(Options{EnableHeartbeats: tt.opt}).HeartbeatsEnabled; got != tt.want {
				t.Errorf("HeartbeatsEnabled = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewConfigSecondsBetweenHeartbeats(t *testing.T) {
	tests := []struct {
		in   float64
		want time.Duration
	}{
		{1, time.Second},
		{15, 15 * time.Second},
		{7.5, 7500 * time.Millisecond},
		{0.5, 5500 * time.Millisecond},
		{16, 5500 * time.Millisecond},
		{-3, 5500 * time.Millisecond},
		{math.NaN(), 5500 * time.Millisecond},
		{math.Inf(1), 5500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := NewConfig(Options{SecondsBetweenHeartbeats: tt.in}).HeartbeatInterval; got != tt.want {
			t.Errorf("SecondsBetweenHeartbeats=%v: HeartbeatInterval = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewConfigActiveTimeout(t *testing.T) {
	tests := []struct {
		in   float64
		want time.Duration
	}{
		{1, time.Second},
		{60, time.Minute},
		{30, 30 * time.Second},
		{0, 5 * time.Second},
		{61, 5 * time.Second},
		{math.NaN(), 5 * time.Second},
	}
	for _, tt := range tests {
		if got := NewConfig(Options{ActiveTimeout: tt.in}).ActiveTimeout; got != tt.want {
			t.Errorf("ActiveTimeout=%v: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSignalType(t *testing.T) {
	for _, s := range ActivitySignals {
		if got, ok := ParseSignalType(string(s)); !ok || got != s {
			t.Errorf("ParseSignalType(%q) = %q, %v", s, got, ok)
		}
	}
	if _, ok := ParseSignalType("click"); ok {
		t.Error("click is not a monitored signal")
	}
}

func TestParseVisibility(t *testing.T) {
	tests := map[string]Visibility{
		"shown":   VisibilityShown,
		"visible": VisibilityShown,
		"hidden":  VisibilityHidden,
	}
	for in, want := range tests {
		if got, ok := ParseVisibility(in); !ok || got != want {
			t.Errorf("ParseVisibility(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseVisibility("prerender"); ok {
		t.Error("prerender should not parse")
	}
}

package mqttsource

import (
	"strings"
	"testing"
	"time"
)

func TestParseBrokerURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantAddress string
		wantSecure  bool
		wantErr     string
	}{
		{name: "tcp with port", url: "tcp://localhost:1884", wantAddress: "localhost:1884"},
		{name: "mqtt default port", url: "mqtt://broker", wantAddress: "broker:1883"},
		{name: "ssl default port", url: "ssl://broker", wantAddress: "broker:8883", wantSecure: true},
		{name: "tls", url: "tls://broker:9999", wantAddress: "broker:9999", wantSecure: true},
		{name: "mqtts", url: "mqtts://broker", wantAddress: "broker:8883", wantSecure: true},
		{name: "empty", url: "", wantErr: "required"},
		{name: "bad scheme", url: "http://broker", wantErr: "unsupported broker scheme"},
		{name: "no host", url: "tcp://:1883", wantErr: "no host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := parseBrokerURL(tt.url)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("parseBrokerURL(%q) error = %v, want containing %q", tt.url, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBrokerURL(%q) error = %v", tt.url, err)
			}
			if b.address != tt.wantAddress {
				t.Errorf("address = %q, want %q", b.address, tt.wantAddress)
			}
			if b.secure != tt.wantSecure {
				t.Errorf("secure = %v, want %v", b.secure, tt.wantSecure)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{URL: "tcp://localhost:1883", Topics: []string{"sensors/#"}}},
		{name: "bad qos", cfg: Config{URL: "tcp://localhost:1883", QoS: 3}, wantErr: true},
		{name: "empty topic", cfg: Config{URL: "tcp://localhost:1883", Topics: []string{""}}, wantErr: true},
		{name: "negative backoff", cfg: Config{URL: "tcp://localhost:1883", MinBackoff: -time.Second}, wantErr: true},
		{name: "missing url", cfg: Config{}, wantErr: true},
		{name: "max keepalive", cfg: Config{URL: "tcp://localhost:1883", KeepAlive: MaxKeepAlive}},
		{name: "keepalive overflows packet field", cfg: Config{URL: "tcp://localhost:1883", KeepAlive: 20 * time.Hour}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{URL: "tcp://localhost:1883", MinBackoff: time.Minute}.withDefaults()

	if len(cfg.Topics) != 1 || cfg.Topics[0] != DefaultTopic {
		t.Errorf("Topics = %v, want [%s]", cfg.Topics, DefaultTopic)
	}
	if !strings.HasPrefix(cfg.ClientID, "bifrost-") {
		t.Errorf("ClientID = %q, want bifrost- prefix", cfg.ClientID)
	}
	if cfg.KeepAlive != DefaultKeepAlive {
		t.Errorf("KeepAlive = %v, want %v", cfg.KeepAlive, DefaultKeepAlive)
	}
	if cfg.MaxBackoff != time.Minute {
		t.Errorf("MaxBackoff = %v, want raised to MinBackoff %v", cfg.MaxBackoff, time.Minute)
	}
}

package kafka

import (
	"strings"
	"testing"

	"github.com/IBM/sarama"
)

func TestSourceConfigValidate(t *testing.T) {
	valid := SourceConfig{
		BootstrapServers: []string{"localhost:9092"},
		Topics:           []string{"events"},
		GroupID:          "block-store",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	tests := []struct {
		name    string
		cfg     SourceConfig
		wantErr string
	}{
		{
			name:    "missing servers",
			cfg:     SourceConfig{Topics: []string{"t"}, GroupID: "g"},
			wantErr: "bootstrap servers",
		},
		{
			name:    "missing topics",
			cfg:     SourceConfig{BootstrapServers: []string{"b:9092"}, GroupID: "g"},
			wantErr: "topic",
		},
		{
			name:    "missing group id",
			cfg:     SourceConfig{BootstrapServers: []string{"b:9092"}, Topics: []string{"t"}},
			wantErr: "group id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("Validate() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigureSecurityPlaintext(t *testing.T) {
	for _, protocol := range []string{"", "PLAINTEXT"} {
		config := sarama.NewConfig()
		err := configureSecurity(config, SourceConfig{SecurityProtocol: protocol})
		if err != nil {
			t.Errorf("configureSecurity(%q) error = %v", protocol, err)
		}
		if config.Net.SASL.Enable {
			t.Errorf("protocol %q enabled SASL", protocol)
		}
	}
}

func TestConfigureSecuritySASLPlain(t *testing.T) {
	config := sarama.NewConfig()
	err := configureSecurity(config, SourceConfig{
		SecurityProtocol: "SASL_SSL",
		SASLMechanism:    "PLAIN",
		SASLUsername:     "user",
		SASLPassword:     "pass",
	})
	if err != nil {
		t.Fatalf("configureSecurity() error = %v", err)
	}
	if !config.Net.SASL.Enable {
		t.Error("SASL not enabled")
	}
	if config.Net.SASL.Mechanism != sarama.SASLTypePlaintext {
		t.Errorf("mechanism = %v, want PLAIN", config.Net.SASL.Mechanism)
	}
	if !config.Net.TLS.Enable {
		t.Error("TLS not enabled for SASL_SSL")
	}
}

func TestConfigureSecuritySCRAM(t *testing.T) {
	tests := []struct {
		mechanism string
		want      sarama.SASLMechanism
	}{
		{"SCRAM-SHA-256", sarama.SASLTypeSCRAMSHA256},
		{"SCRAM-SHA-512", sarama.SASLTypeSCRAMSHA512},
	}

	for _, tt := range tests {
		t.Run(tt.mechanism, func(t *testing.T) {
			config := sarama.NewConfig()
			err := configureSecurity(config, SourceConfig{
				SecurityProtocol: "SASL_PLAINTEXT",
				SASLMechanism:    tt.mechanism,
				SASLUsername:     "user",
				SASLPassword:     "pass",
			})
			if err != nil {
				t.Fatalf("configureSecurity() error = %v", err)
			}
			if config.Net.SASL.Mechanism != tt.want {
				t.Errorf("mechanism = %v, want %v", config.Net.SASL.Mechanism, tt.want)
			}
			if config.Net.SASL.SCRAMClientGeneratorFunc == nil {
				t.Fatal("SCRAM client generator not installed")
			}
			if client := config.Net.SASL.SCRAMClientGeneratorFunc(); client == nil {
				t.Error("SCRAM client generator returned nil")
			}
		})
	}
}

func TestConfigureSecurityUnsupportedMechanism(t *testing.T) {
	config := sarama.NewConfig()
	err := configureSecurity(config, SourceConfig{
		SecurityProtocol: "SASL_SSL",
		SASLMechanism:    "GSSAPI",
	})
	if err == nil {
		t.Error("configureSecurity() with unsupported mechanism succeeded, want error")
	}
}

func TestConfigureSecurityUnsupportedProtocol(t *testing.T) {
	config := sarama.NewConfig()
	err := configureSecurity(config, SourceConfig{SecurityProtocol: "KERBEROS"})
	if err == nil {
		t.Error("configureSecurity() with unsupported protocol succeeded, want error")
	}
}

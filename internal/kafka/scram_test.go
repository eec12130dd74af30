package kafka

import (
	"testing"

	"github.com/xdg-go/scram"
)

func TestXDGSCRAMClientBegin(t *testing.T) {
	client := &XDGSCRAMClient{HashGeneratorFcn: SHA256()}

	if err := client.Begin("testuser", "testpass", ""); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if client.Client == nil {
		t.Error("Begin() did not initialize client")
	}
	if client.ClientConversation == nil {
		t.Error("Begin() did not initialize conversation")
	}
	if client.Done() {
		t.Error("Done() = true before any step")
	}
}

func TestXDGSCRAMClientFirstStep(t *testing.T) {
	for _, tt := range []struct {
		name    string
		hashGen scram.HashGeneratorFcn
	}{
		{"SHA256", SHA256()},
		{"SHA512", SHA512()},
	} {
		t.Run(tt.name, func(t *testing.T) {
			client := &XDGSCRAMClient{HashGeneratorFcn: tt.hashGen}
			if err := client.Begin("testuser", "testpass", ""); err != nil {
				t.Fatalf("Begin() error = %v", err)
			}

			// The first step takes no challenge and produces the
			// client-first message.
			first, err := client.Step("")
			if err != nil {
				t.Fatalf("Step() error = %v", err)
			}
			if first == "" {
				t.Error("Step() returned empty client-first message")
			}
		})
	}
}

func TestSCRAMConversation(t *testing.T) {
	// Full client/server SCRAM exchange against an in-process server.
	server, err := scram.SHA256.NewServer(func(user string) (scram.StoredCredentials, error) {
		kf := scram.KeyFactors{Salt: "salt1234", Iters: 4096}
		client, err := scram.SHA256.NewClient(user, "testpass", "")
		if err != nil {
			return scram.StoredCredentials{}, err
		}
		return client.GetStoredCredentials(kf), nil
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	serverConv := server.NewConversation()

	client := &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
	if err := client.Begin("testuser", "testpass", ""); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	challenge := ""
	for !client.Done() {
		response, err := client.Step(challenge)
		if err != nil {
			t.Fatalf("client Step() error = %v", err)
		}
		if client.Done() {
			break
		}
		challenge, err = serverConv.Step(response)
		if err != nil {
			t.Fatalf("server Step() error = %v", err)
		}
	}

	if !serverConv.Valid() {
		t.Error("server conversation did not validate client")
	}
}

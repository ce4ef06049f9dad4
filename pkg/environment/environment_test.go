package environment

import (
	"strings"
	"testing"
)

// testInputs returns a valid set of user inputs for tests.
func testInputs() UserInputs {
	return UserInputs{
		Provider: "lxd",
		SSH: SSHCredentials{
			User:           "torrust",
			Port:           22,
			PrivateKeyPath: "/home/torrust/.ssh/id_ed25519",
			PublicKeyPath:  "/home/torrust/.ssh/id_ed25519.pub",
		},
		Tracker: TrackerConfig{
			HTTPPort: 7070,
			UDPPort:  6969,
			APIPort:  1212,
			APIToken: "secret",
		},
	}
}

func mustNew(t *testing.T, name string) *Environment {
	t.Helper()
	env, err := New(name, testInputs())
	if err != nil {
		t.Fatalf("New(%q): %v", name, err)
	}
	return env
}

func TestNew(t *testing.T) {
	env := mustNew(t, "demo")

	if env.State != StateCreated {
		t.Errorf("state = %s, want created", env.State)
	}
	if env.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
	if len(env.History) != 1 || env.History[0].State != StateCreated {
		t.Errorf("history = %v, want single created entry", env.History)
	}
	if env.Outputs.Managed {
		t.Error("fresh environment must not be marked managed before provisioning")
	}
}

func TestNewRejectsInvalidInputs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UserInputs)
		envName string
	}{
		{"empty name", func(*UserInputs) {}, ""},
		{"name with spaces", func(*UserInputs) {}, "my env"},
		{"name with underscore", func(*UserInputs) {}, "my_env"},
		{"name too long", func(*UserInputs) {}, strings.Repeat("a", 64)},
		{"unknown provider", func(in *UserInputs) { in.Provider = "vsphere" }, "demo"},
		{"missing ssh user", func(in *UserInputs) { in.SSH.User = "" }, "demo"},
		{"ssh port out of range", func(in *UserInputs) { in.SSH.Port = 70000 }, "demo"},
		{"missing private key", func(in *UserInputs) { in.SSH.PrivateKeyPath = "" }, "demo"},
		{"tracker port zero", func(in *UserInputs) { in.Tracker.UDPPort = 0 }, "demo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := testInputs()
			tt.mutate(&inputs)
			if _, err := New(tt.envName, inputs); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRegister(t *testing.T) {
	env, err := Register("legacy", testInputs(), "192.168.1.50")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if env.State != StateProvisioned {
		t.Errorf("state = %s, want provisioned", env.State)
	}
	if env.Outputs.InstanceAddress != "192.168.1.50" {
		t.Errorf("instance address = %q", env.Outputs.InstanceAddress)
	}
	if env.Outputs.Managed {
		t.Error("registered instance must not be marked managed")
	}
	// Provision must not be legal for a registered instance; configure is the
	// next step.
	if env.CanTransition(TransitionProvision) {
		t.Error("provision legal from provisioned")
	}
	if !env.CanTransition(TransitionConfigure) {
		t.Error("configure not legal from provisioned")
	}
}

func TestRegisterRequiresAddress(t *testing.T) {
	if _, err := Register("legacy", testInputs(), ""); err == nil {
		t.Error("expected error registering without an address")
	}
}

func TestHistoryIsAppendOnly(t *testing.T) {
	env := mustNew(t, "demo")

	steps := []struct {
		transition Transition
		fail       bool
	}{
		{TransitionProvision, true},
		{TransitionProvision, false},
		{TransitionConfigure, false},
	}
	for _, s := range steps {
		if err := env.BeginTransition(s.transition); err != nil {
			t.Fatalf("begin %s: %v", s.transition, err)
		}
		if s.fail {
			env.FailTransition(s.transition)
		} else {
			env.CompleteTransition(s.transition)
		}
	}

	want := []State{
		StateCreated,
		StateProvisioning, StateProvisionFailed,
		StateProvisioning, StateProvisioned,
		StateConfiguring, StateConfigured,
	}
	if len(env.History) != len(want) {
		t.Fatalf("history has %d entries, want %d: %v", len(env.History), len(want), env.History)
	}
	for i, w := range want {
		if env.History[i].State != w {
			t.Errorf("history[%d] = %s, want %s", i, env.History[i].State, w)
		}
		if env.History[i].EnteredAt.IsZero() {
			t.Errorf("history[%d] has zero timestamp", i)
		}
	}
}

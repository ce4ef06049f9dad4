// Package configurator wraps the Ansible playbook runner, the backend that
// applies idempotent configuration scripts to a provisioned instance over
// SSH. The core depends only on RunPlaybook plus inventory rendering.
package configurator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/torrust/torrust-tracker-deployer/pkg/subprocess"
)

// DefaultBinary is the Ansible playbook executable looked up on PATH.
const DefaultBinary = "ansible-playbook"

// Host describes one inventory host entry.
type Host struct {
	Address        string `yaml:"ansible_host"`
	User           string `yaml:"ansible_user"`
	Port           int    `yaml:"ansible_port"`
	PrivateKeyPath string `yaml:"ansible_ssh_private_key_file"`
	// Freshly provisioned instances have unknown host keys.
	CommonArgs string `yaml:"ansible_ssh_common_args"`
}

// Inventory is the YAML document ansible-playbook consumes. The deployer
// always targets a single instance, grouped under "torrust_tracker".
type Inventory struct {
	All struct {
		Children struct {
			TorrustTracker struct {
				Hosts map[string]Host `yaml:"hosts"`
			} `yaml:"torrust_tracker"`
		} `yaml:"children"`
	} `yaml:"all"`
}

// NewInventory builds a single-host inventory.
func NewInventory(name, address, user string, port int, privateKeyPath string) *Inventory {
	inv := &Inventory{}
	inv.All.Children.TorrustTracker.Hosts = map[string]Host{
		name: {
			Address:        address,
			User:           user,
			Port:           port,
			PrivateKeyPath: privateKeyPath,
			CommonArgs:     "-o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null",
		},
	}
	return inv
}

// Write renders the inventory to path atomically (temp file + rename, like
// every other file this tool persists).
func (inv *Inventory) Write(path string) error {
	data, err := yaml.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create inventory directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write inventory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	return nil
}

// Ansible invokes ansible-playbook against one environment's rendered
// playbook directory.
type Ansible struct {
	binary  string
	workDir string
	runner  subprocess.Runner
}

// New creates an Ansible collaborator operating in workDir. runner may be
// nil, in which case the production subprocess runner is used.
func New(workDir string, runner subprocess.Runner) *Ansible {
	if runner == nil {
		runner = subprocess.NewRunner()
	}
	return &Ansible{binary: DefaultBinary, workDir: workDir, runner: runner}
}

// WithBinary overrides the executable name or path.
func (a *Ansible) WithBinary(binary string) *Ansible {
	a.binary = binary
	return a
}

// RunPlaybook executes the named playbook against the inventory file.
// Success is exit code zero; failure carries the captured output for
// diagnostics via subprocess.ExitError.
func (a *Ansible) RunPlaybook(ctx context.Context, playbook, inventory string) error {
	_, _, err := a.runner.Run(ctx, a.workDir, a.binary, "-i", inventory, playbook)
	if err != nil {
		return fmt.Errorf("playbook %s: %w", playbook, err)
	}
	return nil
}

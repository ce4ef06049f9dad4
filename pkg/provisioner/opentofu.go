// Package provisioner wraps the OpenTofu binary, the backend that turns the
// rendered declarative configuration into a running instance. The core only
// depends on the narrow phase methods here; everything OpenTofu-specific
// (arguments, output parsing) stays in this package.
package provisioner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/torrust/torrust-tracker-deployer/pkg/subprocess"
)

// DefaultBinary is the OpenTofu executable looked up on PATH.
const DefaultBinary = "tofu"

// instanceAddressOutput is the OpenTofu output name carrying the created
// instance's address, as declared in the rendered templates.
const instanceAddressOutput = "instance_address"

// Output is one entry of `tofu output -json`.
type Output struct {
	Value json.RawMessage `json:"value"`
	Type  json.RawMessage `json:"type"`
}

// Outputs maps output names to their values.
type Outputs map[string]Output

// InstanceAddress extracts the created instance's address.
func (o Outputs) InstanceAddress() (string, error) {
	out, ok := o[instanceAddressOutput]
	if !ok {
		return "", fmt.Errorf("output %q missing from tofu outputs", instanceAddressOutput)
	}
	var addr string
	if err := json.Unmarshal(out.Value, &addr); err != nil {
		return "", fmt.Errorf("output %q is not a string: %w", instanceAddressOutput, err)
	}
	if addr == "" {
		return "", fmt.Errorf("output %q is empty", instanceAddressOutput)
	}
	return addr, nil
}

// OpenTofu invokes the tofu binary against one environment's rendered
// configuration directory.
type OpenTofu struct {
	binary  string
	workDir string
	runner  subprocess.Runner
}

// New creates an OpenTofu collaborator operating in workDir. runner may be
// nil, in which case the production subprocess runner is used.
func New(workDir string, runner subprocess.Runner) *OpenTofu {
	if runner == nil {
		runner = subprocess.NewRunner()
	}
	return &OpenTofu{binary: DefaultBinary, workDir: workDir, runner: runner}
}

// WithBinary overrides the executable name or path.
func (t *OpenTofu) WithBinary(binary string) *OpenTofu {
	t.binary = binary
	return t
}

// Init initializes the working directory (plugin download, backend setup).
// Idempotent by OpenTofu's own contract.
func (t *OpenTofu) Init(ctx context.Context) error {
	return t.run(ctx, "init", "-input=false", "-no-color")
}

// Validate checks the rendered configuration without touching remote state.
func (t *OpenTofu) Validate(ctx context.Context) error {
	return t.run(ctx, "validate", "-no-color")
}

// Apply creates or converges the declared infrastructure. Re-applying an
// already-converged configuration is a no-op, which is what makes the
// provision transition safe to re-run.
func (t *OpenTofu) Apply(ctx context.Context) error {
	return t.run(ctx, "apply", "-auto-approve", "-input=false", "-no-color")
}

// Destroy tears down everything the configuration created.
func (t *OpenTofu) Destroy(ctx context.Context) error {
	return t.run(ctx, "destroy", "-auto-approve", "-input=false", "-no-color")
}

// Outputs reads the configuration's outputs as structured data.
func (t *OpenTofu) Outputs(ctx context.Context) (Outputs, error) {
	stdout, _, err := t.runner.Run(ctx, t.workDir, t.binary, "output", "-json", "-no-color")
	if err != nil {
		return nil, fmt.Errorf("tofu output: %w", err)
	}
	var outputs Outputs
	if err := json.Unmarshal([]byte(stdout), &outputs); err != nil {
		return nil, fmt.Errorf("parse tofu outputs: %w", err)
	}
	return outputs, nil
}

func (t *OpenTofu) run(ctx context.Context, args ...string) error {
	_, _, err := t.runner.Run(ctx, t.workDir, t.binary, args...)
	if err != nil {
		return fmt.Errorf("tofu %s: %w", args[0], err)
	}
	return nil
}

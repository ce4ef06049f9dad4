// Package lifecycle defines the ordered step sequences behind each lifecycle
// transition: provision, configure, release, run, and destroy. Each builder
// returns the steps for one transition; the step engine executes them against
// a locked, loaded environment.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
	"github.com/torrust/torrust-tracker-deployer/pkg/subprocess"
	"github.com/torrust/torrust-tracker-deployer/pkg/templates"
	"github.com/torrust/torrust-tracker-deployer/pkg/transports/ssh"
)

// RemoteShell is the narrow slice of the SSH transport the lifecycle steps
// depend on.
type RemoteShell interface {
	Probe(ctx context.Context) error
	ExecuteCommand(ctx context.Context, cmd string) (stdout, stderr string, err error)
	UploadDirectory(ctx context.Context, localDir, remoteDir string) error
	Close() error
}

// Planner builds the step sequences for each transition. The zero value is
// not usable; construct with NewPlanner.
type Planner struct {
	renderer *templates.Renderer
	runner   subprocess.Runner

	// newShell creates the remote shell for an environment. Overridable in
	// tests.
	newShell func(env *environment.Environment) (RemoteShell, error)

	// Readiness tuning. Boot can take minutes on slow providers.
	sshAttempts       int
	sshInterval       time.Duration
	cloudInitAttempts int
	cloudInitInterval time.Duration
	healthAttempts    int
	healthInterval    time.Duration
}

// NewPlanner creates a planner rendering into buildDir. runner may be nil for
// the production subprocess runner.
func NewPlanner(buildDir string, runner subprocess.Runner) *Planner {
	if runner == nil {
		runner = subprocess.NewRunner()
	}
	return &Planner{
		renderer:          templates.NewRenderer(buildDir),
		runner:            runner,
		newShell:          defaultShell,
		sshAttempts:       30,
		sshInterval:       2 * time.Second,
		cloudInitAttempts: 60,
		cloudInitInterval: 5 * time.Second,
		healthAttempts:    15,
		healthInterval:    2 * time.Second,
	}
}

// WithShellFactory overrides remote shell construction (used by tests).
func (p *Planner) WithShellFactory(factory func(env *environment.Environment) (RemoteShell, error)) *Planner {
	p.newShell = factory
	return p
}

// WithReadiness overrides the attempt/interval tuning for all polls.
func (p *Planner) WithReadiness(attempts int, interval time.Duration) *Planner {
	p.sshAttempts, p.sshInterval = attempts, interval
	p.cloudInitAttempts, p.cloudInitInterval = attempts, interval
	p.healthAttempts, p.healthInterval = attempts, interval
	return p
}

func defaultShell(env *environment.Environment) (RemoteShell, error) {
	cfg := ssh.DefaultConfig(
		env.Outputs.InstanceAddress,
		env.Inputs.SSH.User,
		env.Inputs.SSH.PrivateKeyPath,
	)
	cfg.Port = env.Inputs.SSH.Port
	return ssh.NewClient(cfg)
}

// shell opens the remote shell, failing with a clear error when the instance
// address has not been discovered yet.
func (p *Planner) shell(env *environment.Environment) (RemoteShell, error) {
	if env.Outputs.InstanceAddress == "" {
		return nil, fmt.Errorf("environment %q has no instance address yet", env.Name)
	}
	return p.newShell(env)
}

package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/torrust/torrust-tracker-deployer/pkg/configurator"
	"github.com/torrust/torrust-tracker-deployer/pkg/engine"
	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
	"github.com/torrust/torrust-tracker-deployer/pkg/provisioner"
	"github.com/torrust/torrust-tracker-deployer/pkg/readiness"
	"github.com/torrust/torrust-tracker-deployer/pkg/templates"
)

// notReadyError marks a probe failure as recoverable so the readiness poller
// keeps retrying instead of failing fast.
type notReadyError struct {
	err error
}

func (e *notReadyError) Error() string   { return e.err.Error() }
func (e *notReadyError) Unwrap() error   { return e.err }
func (e *notReadyError) Temporary() bool { return true }

// remoteAppDir is where the release bundle lives on the instance.
func remoteAppDir(env *environment.Environment) string {
	return fmt.Sprintf("/home/%s/torrust-tracker", env.Inputs.SSH.User)
}

// Provision returns the steps that create the instance and wait for it to
// accept work: render inputs, drive OpenTofu, record the discovered address,
// then poll SSH and cloud-init.
func (p *Planner) Provision() []engine.Step {
	return []engine.Step{
		engine.StepFunc{
			Desc: "render provisioning configuration",
			Fn: func(_ context.Context, env *environment.Environment, report engine.Reporter) error {
				dir, err := p.renderer.RenderProvision(env)
				if err != nil {
					return err
				}
				report.Debug("rendered opentofu configuration into " + dir)
				return nil
			},
		},
		engine.StepFunc{
			Desc: "initialize infrastructure workspace",
			Fn: func(ctx context.Context, env *environment.Environment, _ engine.Reporter) error {
				tofu := p.tofu(env)
				if err := tofu.Init(ctx); err != nil {
					return err
				}
				return tofu.Validate(ctx)
			},
		},
		engine.StepFunc{
			Desc: "apply infrastructure changes",
			Fn: func(ctx context.Context, env *environment.Environment, _ engine.Reporter) error {
				return p.tofu(env).Apply(ctx)
			},
		},
		engine.StepFunc{
			Desc: "collect instance address",
			Fn: func(ctx context.Context, env *environment.Environment, report engine.Reporter) error {
				outputs, err := p.tofu(env).Outputs(ctx)
				if err != nil {
					return err
				}
				addr, err := outputs.InstanceAddress()
				if err != nil {
					return err
				}
				env.Outputs.InstanceAddress = addr
				env.Outputs.Managed = true
				report.Detail("instance address: " + addr)
				return nil
			},
		},
		engine.StepFunc{
			Desc: "wait for SSH connectivity",
			Fn: func(ctx context.Context, env *environment.Environment, report engine.Reporter) error {
				sh, err := p.shell(env)
				if err != nil {
					return err
				}
				defer sh.Close()
				return readiness.Wait(ctx, sh.Probe, p.sshAttempts, p.sshInterval, report)
			},
		},
		engine.StepFunc{
			Desc: "wait for cloud-init to finish",
			Fn: func(ctx context.Context, env *environment.Environment, report engine.Reporter) error {
				sh, err := p.shell(env)
				if err != nil {
					return err
				}
				defer sh.Close()
				probe := func(ctx context.Context) error {
					stdout, _, err := sh.ExecuteCommand(ctx, "cloud-init status")
					if err != nil {
						return &notReadyError{err: err}
					}
					if !strings.Contains(stdout, "done") {
						return &notReadyError{err: fmt.Errorf("cloud-init status: %s", strings.TrimSpace(stdout))}
					}
					return nil
				}
				return readiness.Wait(ctx, probe, p.cloudInitAttempts, p.cloudInitInterval, report)
			},
		},
	}
}

// Configure returns the steps that prepare the instance to run the
// application: render playbooks, write the inventory, install the container
// runtime, and verify it answers.
func (p *Planner) Configure() []engine.Step {
	return []engine.Step{
		engine.StepFunc{
			Desc: "render configuration playbooks",
			Fn: func(_ context.Context, env *environment.Environment, report engine.Reporter) error {
				dir, err := p.renderer.RenderAnsible(env)
				if err != nil {
					return err
				}
				report.Debug("rendered playbooks into " + dir)
				return nil
			},
		},
		engine.StepFunc{
			Desc: "write ansible inventory",
			Fn: func(_ context.Context, env *environment.Environment, _ engine.Reporter) error {
				if env.Outputs.InstanceAddress == "" {
					return fmt.Errorf("environment %q has no instance address yet", env.Name)
				}
				inv := configurator.NewInventory(
					env.Name,
					env.Outputs.InstanceAddress,
					env.Inputs.SSH.User,
					env.Inputs.SSH.Port,
					env.Inputs.SSH.PrivateKeyPath,
				)
				return inv.Write(p.inventoryPath(env))
			},
		},
		engine.StepFunc{
			Desc: "install docker",
			Fn: func(ctx context.Context, env *environment.Environment, _ engine.Reporter) error {
				return p.ansible(env).RunPlaybook(ctx, "install-docker.yml", p.inventoryPath(env))
			},
		},
		engine.StepFunc{
			Desc: "install docker compose",
			Fn: func(ctx context.Context, env *environment.Environment, _ engine.Reporter) error {
				return p.ansible(env).RunPlaybook(ctx, "install-docker-compose.yml", p.inventoryPath(env))
			},
		},
		engine.StepFunc{
			Desc: "verify container runtime",
			Fn: func(ctx context.Context, env *environment.Environment, report engine.Reporter) error {
				sh, err := p.shell(env)
				if err != nil {
					return err
				}
				defer sh.Close()
				stdout, _, err := sh.ExecuteCommand(ctx, "docker --version")
				if err != nil {
					return err
				}
				report.Detail(strings.TrimSpace(stdout))
				return nil
			},
		},
	}
}

// Release returns the steps that move the application bundle onto the
// instance and install it.
func (p *Planner) Release() []engine.Step {
	return []engine.Step{
		engine.StepFunc{
			Desc: "render release bundle",
			Fn: func(_ context.Context, env *environment.Environment, report engine.Reporter) error {
				dir, err := p.renderer.RenderRelease(env)
				if err != nil {
					return err
				}
				report.Debug("rendered release bundle into " + dir)
				return nil
			},
		},
		engine.StepFunc{
			Desc: "upload release bundle",
			Fn: func(ctx context.Context, env *environment.Environment, report engine.Reporter) error {
				sh, err := p.shell(env)
				if err != nil {
					return err
				}
				defer sh.Close()
				local := filepath.Join(p.renderer.EnvironmentDir(env.Name), templates.ReleaseDir)
				remote := remoteAppDir(env)
				report.Detail("uploading to " + remote)
				return sh.UploadDirectory(ctx, local, remote)
			},
		},
		engine.StepFunc{
			Desc: "deploy application stack",
			Fn: func(ctx context.Context, env *environment.Environment, _ engine.Reporter) error {
				return p.ansible(env).RunPlaybook(ctx, "deploy-stack.yml", p.inventoryPath(env))
			},
		},
	}
}

// Run returns the steps that start the application and wait until its API
// answers.
func (p *Planner) Run() []engine.Step {
	return []engine.Step{
		engine.StepFunc{
			Desc: "start application services",
			Fn: func(ctx context.Context, env *environment.Environment, report engine.Reporter) error {
				sh, err := p.shell(env)
				if err != nil {
					return err
				}
				defer sh.Close()
				cmd := fmt.Sprintf("cd %s && docker compose up -d", remoteAppDir(env))
				stdout, _, err := sh.ExecuteCommand(ctx, cmd)
				if err != nil {
					return err
				}
				if out := strings.TrimSpace(stdout); out != "" {
					report.Debug(out)
				}
				return nil
			},
		},
		engine.StepFunc{
			Desc: "wait for tracker API",
			Fn: func(ctx context.Context, env *environment.Environment, report engine.Reporter) error {
				sh, err := p.shell(env)
				if err != nil {
					return err
				}
				defer sh.Close()
				check := fmt.Sprintf("curl -fsS http://127.0.0.1:%d/api/health_check", env.Inputs.Tracker.APIPort)
				probe := func(ctx context.Context) error {
					if _, _, err := sh.ExecuteCommand(ctx, check); err != nil {
						return &notReadyError{err: err}
					}
					return nil
				}
				return readiness.Wait(ctx, probe, p.healthAttempts, p.healthInterval, report)
			},
		},
	}
}

// Destroy returns the steps that tear down the instance. Unmanaged instances
// (registered, not provisioned by us) are left alone; only the recorded
// runtime outputs are cleared.
func (p *Planner) Destroy() []engine.Step {
	return []engine.Step{
		engine.StepFunc{
			Desc: "tear down infrastructure",
			Fn: func(ctx context.Context, env *environment.Environment, report engine.Reporter) error {
				if !env.Outputs.Managed {
					report.Detail("instance not managed by this tool; skipping teardown")
					return nil
				}
				if _, err := p.renderer.RenderProvision(env); err != nil {
					return err
				}
				tofu := p.tofu(env)
				if err := tofu.Init(ctx); err != nil {
					return err
				}
				return tofu.Destroy(ctx)
			},
		},
		engine.StepFunc{
			Desc: "clear runtime outputs",
			Fn: func(_ context.Context, env *environment.Environment, _ engine.Reporter) error {
				env.Outputs = environment.RuntimeOutputs{}
				return nil
			},
		},
	}
}

// Steps returns the step sequence for a transition, or an error for
// transitions that have none (create happens outside the engine).
func (p *Planner) Steps(t environment.Transition) ([]engine.Step, error) {
	switch t {
	case environment.TransitionProvision:
		return p.Provision(), nil
	case environment.TransitionConfigure:
		return p.Configure(), nil
	case environment.TransitionRelease:
		return p.Release(), nil
	case environment.TransitionRun:
		return p.Run(), nil
	case environment.TransitionDestroy:
		return p.Destroy(), nil
	default:
		return nil, fmt.Errorf("no step sequence for transition %q", t)
	}
}

func (p *Planner) tofu(env *environment.Environment) *provisioner.OpenTofu {
	dir := filepath.Join(p.renderer.EnvironmentDir(env.Name), templates.TofuDir)
	return provisioner.New(dir, p.runner)
}

func (p *Planner) ansible(env *environment.Environment) *configurator.Ansible {
	dir := filepath.Join(p.renderer.EnvironmentDir(env.Name), templates.AnsibleDir)
	return configurator.New(dir, p.runner)
}

func (p *Planner) inventoryPath(env *environment.Environment) string {
	return filepath.Join(p.renderer.EnvironmentDir(env.Name), templates.AnsibleDir, "inventory.yml")
}

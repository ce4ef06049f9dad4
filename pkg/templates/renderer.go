// Package templates renders the input files consumed by the provisioning and
// configuration backends: OpenTofu configuration, cloud-init user data,
// Ansible playbooks, and the release bundle (compose file plus tracker
// configuration). Assets are embedded; rendering writes one tree per
// environment under the build directory.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
)

//go:embed assets
var assetsFS embed.FS

// Subdirectories of one environment's build tree.
const (
	TofuDir    = "tofu"
	AnsibleDir = "ansible"
	ReleaseDir = "release"
)

// data is the template context. One flat struct keeps the templates simple.
type data struct {
	Name      string
	Provider  string
	SSHUser   string
	SSHPort   int
	PublicKey string
	Tracker   environment.TrackerConfig
}

// Renderer writes rendered input trees under a build directory.
type Renderer struct {
	buildDir string
}

// NewRenderer creates a renderer rooted at buildDir.
func NewRenderer(buildDir string) *Renderer {
	return &Renderer{buildDir: buildDir}
}

// EnvironmentDir returns the build tree root for one environment.
func (r *Renderer) EnvironmentDir(name string) string {
	return filepath.Join(r.buildDir, name)
}

// RenderProvision renders the OpenTofu configuration and cloud-init user data
// for the environment and returns the directory to run tofu in. Rendering is
// idempotent: re-rendering overwrites the previous tree, leaving OpenTofu's
// state file untouched.
func (r *Renderer) RenderProvision(env *environment.Environment) (string, error) {
	d, err := r.templateData(env)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(r.EnvironmentDir(env.Name), TofuDir)
	if err := r.renderTree(filepath.Join("assets", TofuDir, env.Inputs.Provider), dst, d); err != nil {
		return "", err
	}
	return dst, nil
}

// RenderAnsible writes the configuration playbooks for the environment and
// returns the directory to run ansible-playbook in. The inventory file is
// written separately by the configurator, since it depends on runtime
// outputs.
func (r *Renderer) RenderAnsible(env *environment.Environment) (string, error) {
	d, err := r.templateData(env)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(r.EnvironmentDir(env.Name), AnsibleDir)
	if err := r.renderTree(filepath.Join("assets", AnsibleDir), dst, d); err != nil {
		return "", err
	}
	return dst, nil
}

// RenderRelease renders the release bundle (compose file and tracker
// configuration) and returns its directory.
func (r *Renderer) RenderRelease(env *environment.Environment) (string, error) {
	d, err := r.templateData(env)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(r.EnvironmentDir(env.Name), ReleaseDir)
	if err := r.renderTree(filepath.Join("assets", ReleaseDir), dst, d); err != nil {
		return "", err
	}
	return dst, nil
}

func (r *Renderer) templateData(env *environment.Environment) (*data, error) {
	d := &data{
		Name:     env.Name,
		Provider: env.Inputs.Provider,
		SSHUser:  env.Inputs.SSH.User,
		SSHPort:  env.Inputs.SSH.Port,
		Tracker:  env.Inputs.Tracker,
	}
	if env.Inputs.SSH.PublicKeyPath != "" {
		key, err := os.ReadFile(env.Inputs.SSH.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key %s: %w", env.Inputs.SSH.PublicKeyPath, err)
		}
		d.PublicKey = strings.TrimSpace(string(key))
	}
	return d, nil
}

// renderTree walks the embedded source tree. Files with a .tmpl suffix are
// executed as templates (the suffix is stripped); everything else is copied
// verbatim.
func (r *Renderer) renderTree(src, dst string, d *data) error {
	return fs.WalkDir(assetsFS, src, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk templates %s: %w", src, err)
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}

		content, err := assetsFS.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read template %s: %w", p, err)
		}

		out := filepath.Join(dst, rel)
		if strings.HasSuffix(rel, ".tmpl") {
			out = strings.TrimSuffix(out, ".tmpl")
			tmpl, err := template.New(rel).Parse(string(content))
			if err != nil {
				return fmt.Errorf("parse template %s: %w", p, err)
			}
			var rendered strings.Builder
			if err := tmpl.Execute(&rendered, d); err != nil {
				return fmt.Errorf("render template %s: %w", p, err)
			}
			content = []byte(rendered.String())
		}

		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(out, content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		return nil
	})
}

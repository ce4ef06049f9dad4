package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
)

func newCreateCommand() *cobra.Command {
	var (
		provider        string
		sshUser         string
		sshPort         int
		privateKeyPath  string
		publicKeyPath   string
		httpPort        int
		udpPort         int
		apiPort         int
		apiToken        string
		instanceAddress string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new environment record",
		Long: `Create persists a new environment in the created state. Nothing is
provisioned yet; the record only captures the inputs later transitions need.

With --instance-address the environment is registered against a pre-existing
instance instead: it starts in the provisioned state and destroy will never
tear the instance down.`,
		Example: `  # A fresh environment provisioned on LXD
  deployer create staging --provider lxd --ssh-private-key ~/.ssh/id_ed25519

  # Adopt a machine that already exists
  deployer create lab --provider lxd --ssh-private-key ~/.ssh/id_ed25519 \
    --instance-address 10.140.190.14`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			repo, err := openRepository()
			if err != nil {
				return err
			}
			if repo.Exists(name) {
				return fmt.Errorf("environment %q already exists", name)
			}

			inputs := environment.UserInputs{
				Provider: provider,
				SSH: environment.SSHCredentials{
					User:           sshUser,
					Port:           sshPort,
					PrivateKeyPath: privateKeyPath,
					PublicKeyPath:  publicKeyPath,
				},
				Tracker: environment.TrackerConfig{
					HTTPPort: httpPort,
					UDPPort:  udpPort,
					APIPort:  apiPort,
					APIToken: apiToken,
				},
			}

			var env *environment.Environment
			if instanceAddress != "" {
				env, err = environment.Register(name, inputs, instanceAddress)
			} else {
				env, err = environment.New(name, inputs)
			}
			if err != nil {
				return err
			}

			if err := repo.Save(env); err != nil {
				return err
			}

			log.Info().
				Str("environment", name).
				Str("provider", provider).
				Str("state", string(env.State)).
				Msg("environment created")
			fmt.Fprintf(cmd.OutOrStdout(), "environment %q created in state %s\n", name, env.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "lxd", "infrastructure provider (lxd, multipass, hetzner)")
	cmd.Flags().StringVar(&sshUser, "ssh-user", "torrust", "SSH user on the instance")
	cmd.Flags().IntVar(&sshPort, "ssh-port", 22, "SSH port on the instance")
	cmd.Flags().StringVar(&privateKeyPath, "ssh-private-key", "", "path to the SSH private key")
	cmd.Flags().StringVar(&publicKeyPath, "ssh-public-key", "", "path to the SSH public key injected via cloud-init")
	cmd.Flags().IntVar(&httpPort, "http-port", 7070, "tracker HTTP announce port")
	cmd.Flags().IntVar(&udpPort, "udp-port", 6969, "tracker UDP announce port")
	cmd.Flags().IntVar(&apiPort, "api-port", 1212, "tracker management API port")
	cmd.Flags().StringVar(&apiToken, "api-token", "MyAccessToken", "tracker management API token")
	cmd.Flags().StringVar(&instanceAddress, "instance-address", "", "adopt an existing instance at this address instead of provisioning")
	cmd.MarkFlagRequired("ssh-private-key")

	return cmd
}

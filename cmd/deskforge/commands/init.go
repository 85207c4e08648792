package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const starterConfig = `# deskforge machine configuration
distro = "fedora"

custom_commands = []

[system]
# hostname = "workstation"
packages = [
    "git",
    "podman",
]

[flatpak]
applications = [
    # "org.mozilla.firefox",
]

# [[service]]
# name = "sshd"
# enabled = true
# started = true

# [[container]]
# name = "web"
# image = "docker.io/library/nginx:latest"
# raw_flags = "-p 8080:80"
# autostart = true

# [[group]]
# name = "developers"

# [[user]]
# name = "alice"
# groups = ["developers"]
# shell = "/bin/bash"

# [[wireguard]]
# conf_path = "wg0.conf"
# auto_connect = true

[dotfiles]
setup_bashrc = false
setup_config_dirs = []
`

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a commented starter configuration to the --config path. Refuses
to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", configPath)
			}
			if err := os.WriteFile(configPath, []byte(starterConfig), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", configPath, err)
			}
			fmt.Printf("Wrote %s\n", configPath)
			return nil
		},
	}
	return cmd
}

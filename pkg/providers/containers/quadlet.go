package containers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// GenerateUnit renders the systemd container unit for an autostarted
// container. Translation is best-effort: flags outside the table are
// dropped from the unit with a warning per flag (they still reach podman
// create), never an error.
func GenerateUnit(name, image string, fs *FlagSet, homeDir string, logger zerolog.Logger) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[Unit]\n")
	fmt.Fprintf(&b, "Description=Container %s\n", name)
	fmt.Fprintf(&b, "Wants=network-online.target\n")
	fmt.Fprintf(&b, "After=network-online.target\n")
	fmt.Fprintf(&b, "\n[Container]\n")
	fmt.Fprintf(&b, "ContainerName=%s\n", name)
	fmt.Fprintf(&b, "Image=%s\n", image)

	for _, p := range fs.Publish {
		fmt.Fprintf(&b, "PublishPort=%s\n", p)
	}
	for _, v := range fs.Volumes {
		fmt.Fprintf(&b, "Volume=%s\n", expandHome(v, homeDir))
	}
	for _, e := range fs.Env {
		fmt.Fprintf(&b, "Environment=%s\n", e)
	}
	for _, d := range fs.Devices {
		fmt.Fprintf(&b, "AddDevice=%s\n", d)
	}
	for _, c := range fs.CapAdd {
		fmt.Fprintf(&b, "AddCapability=%s\n", c)
	}
	for _, s := range fs.SecurityOpts {
		if s == "label=disable" {
			fmt.Fprintf(&b, "SecurityLabelDisable=true\n")
		} else {
			fmt.Fprintf(&b, "PodmanArgs=--security-opt %s\n", s)
		}
	}
	if fs.ShmSize != "" {
		fmt.Fprintf(&b, "ShmSize=%s\n", fs.ShmSize)
	}
	for _, u := range fs.Unknown {
		logger.Warn().Str("container", name).Str("flag", u).
			Msg("Flag not translatable to a unit directive, dropped from the unit")
	}

	fmt.Fprintf(&b, "\n[Service]\n")
	fmt.Fprintf(&b, "Restart=always\n")
	fmt.Fprintf(&b, "\n[Install]\n")
	fmt.Fprintf(&b, "WantedBy=default.target\n")
	return b.String()
}

// expandHome expands a leading ~ in the source half of a volume spec.
// systemd unit directives do not perform shell tilde expansion.
func expandHome(volume, homeDir string) string {
	parts := strings.SplitN(volume, ":", 2)
	if strings.HasPrefix(parts[0], "~") {
		parts[0] = filepath.Join(homeDir, strings.TrimPrefix(parts[0], "~"))
	}
	return strings.Join(parts, ":")
}

package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"samizdat/internal/network/ssh"
)

//go:embed config.yml.tmpl
var configTemplate string

var initCmd = &cobra.Command{
	Use:   "init [config_name]",
	Short: "Initialize a new board configuration",
	Long:  "Creates a configuration file, its directory tree and an SSH host key, prompting for details.",
	Args:  cobra.MaximumNArgs(1),
	Run:   runInit,
}

type configTemplateData struct {
	Dir         string
	BoardName   string
	Description string
	Hostname    string
	Sysop       string
	TelnetPort  int
	SSHPort     int
}

func runInit(cmd *cobra.Command, args []string) {
	configName := "config"
	if len(args) > 0 {
		configName = args[0]
	}
	safeName := sanitizeFilename(configName)
	if safeName == "" {
		log.Fatalf("Invalid config name %q", configName)
	}

	data := configTemplateData{Dir: safeName}
	telnetPort, sshPort := "2323", "2222"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Board Name").
				Value(&data.BoardName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("board name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Description").
				Description("Shown under the welcome banner").
				Value(&data.Description),
			huh.NewInput().
				Title("Hostname").
				Value(&data.Hostname),
			huh.NewInput().
				Title("Sysop").
				Value(&data.Sysop),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Telnet Port").
				Value(&telnetPort).
				Validate(validatePort),
			huh.NewInput().
				Title("SSH Port").
				Value(&sshPort).
				Validate(validatePort),
		),
	)

	if err := form.Run(); err != nil {
		log.Fatal(err)
	}
	data.TelnetPort, _ = strconv.Atoi(telnetPort)
	data.SSHPort, _ = strconv.Atoi(sshPort)

	configFile := safeName + ".yml"
	fmt.Printf("Initializing '%s' (config: %s)...\n", data.BoardName, configFile)

	for _, dir := range []string{"data", "keys", "logs", "art", "files", "uploads"} {
		path := filepath.Join(safeName, dir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			log.Fatalf("Error creating directory %s: %v", path, err)
		}
		fmt.Printf("Created directory: %s\n", path)
	}

	keyFile := filepath.Join(safeName, "keys", "ssh_host_ed25519_key")
	created, err := ssh.WriteHostKey(keyFile)
	if err != nil {
		log.Fatalf("Error writing SSH host key: %v", err)
	}
	if created {
		fmt.Printf("Created SSH host key: %s\n", keyFile)
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		log.Fatalf("Error parsing template: %v", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Fatalf("Error executing template: %v", err)
	}
	if err := os.WriteFile(configFile, buf.Bytes(), 0o644); err != nil {
		log.Fatalf("Error writing config file %s: %v", configFile, err)
	}

	fmt.Printf("Configuration file created: %s\n", configFile)
	fmt.Println("Initialization complete. Create a sysop account with: samizdat user create -c " + configFile)
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9_-]`)

func sanitizeFilename(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	return unsafeChars.ReplaceAllString(name, "")
}

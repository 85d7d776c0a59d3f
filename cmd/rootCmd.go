package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cs244-team/sidekick/api"
	"github.com/cs244-team/sidekick/pkg"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath  string
	nodeRuntime string
	execDir     string
	logDir      string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: "sidekick emulation harness",
	Long: "Emulates a client--router--server network with shaped links and " +
		"launches the webrtc client, the sidekick proxy and the webrtc server on it.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetHandler(cli.Default)
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "Path to the YAML configuration file (env SIDEKICK_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&nodeRuntime, "runtime", "", "Node runtime: netns or docker (env SIDEKICK_RUNTIME)")
	rootCmd.PersistentFlags().StringVar(&execDir, "exec-dir", "", "Directory holding the collaborator binaries (env SIDEKICK_EXEC_DIR)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory receiving the collaborator logs (env SIDEKICK_LOG_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose log output")
}

// loadConfig resolves the configuration: file, then environment, then flags.
func loadConfig() (*api.Config, error) {
	path := firstNonEmpty(configPath, os.Getenv("SIDEKICK_CONFIG"))
	if path != "" {
		log.Debugf("Reading config file from %s", path)
	}
	cfg, err := pkg.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.Runtime = firstNonEmpty(nodeRuntime, os.Getenv("SIDEKICK_RUNTIME"), cfg.Runtime)
	cfg.ExecDir = firstNonEmpty(execDir, os.Getenv("SIDEKICK_EXEC_DIR"), cfg.ExecDir)
	cfg.LogDir = firstNonEmpty(logDir, os.Getenv("SIDEKICK_LOG_DIR"), cfg.LogDir)
	return cfg, nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}

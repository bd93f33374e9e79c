package cmd

import (
	"edgeml/internal/config"
	"edgeml/internal/server"
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "edgeml",
	Short: "sensor acquisition and inference staging for embedded classifiers",
	Long:  "sensor acquisition and inference staging for embedded classifiers",
}

func ServeCmdRunE(cmd *cobra.Command, args []string) error {
	return server.NewMainApp(cmd, args).PrepareRun().Run()
}

func ServeCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().Int64P("port", "p", config.DefaultAPIPort, "port that the status api listens on")
	cmd.Flags().StringP("interface", "i", config.DefaultAPIInterface, "interface that the status api listens on, default to 0.0.0.0")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
	cmd.Flags().Bool("sim", false, "use synthetic devices instead of the i2c bus")
}

var ServeCmd = &cobra.Command{
	Use: "serve",
	SuggestFor: []string{
		"ru", "ser",
	},
	Short: "serve start the acquisition pipeline using predefined configs.",
	Long: `serve start the acquisition pipeline using predefined configs, by the following order:
1. path specified in --config flag
2. path defined EDGEML_CONFIG environment variable
3. default location $HOME/.config/edgeml/config.yaml, /etc/edgeml/config.yaml, current directory
The parameters in the configuration file will be overwritten by the following order:
1. command line arguments
2. environment variables
`,
	Example: `  edgeml serve --config=/path/to/config
  edgeml serve --sim --debug`,
	RunE: ServeCmdRunE,
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output directory")
}

var InitCmd = &cobra.Command{
	Use: "init",
	SuggestFor: []string{
		"ini", "in",
	},
	Short: "init create a configuration template",
	Long: `init create a configuration template.
The configuration file can be used to launch the acquisition pipeline.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/edgeml/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
`,
	Example: `  edgeml init --print
  edgeml init --output /path/to/config.yaml
  edgeml init -o /path/to/config.yaml -y`,
	RunE: config.InitCfg,
}

func ProbeCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
}

var ProbeCmd = &cobra.Command{
	Use: "probe",
	SuggestFor: []string{
		"pro", "pr", "prob",
	},
	Short: "probe the compatible devices",
	Long: `probe the compatible devices.
The probe command reads the WHO_AM_I register of every configured i2c device
and prints the result to stdout.
`,
	Example: `  edgeml probe`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.NewMainApp(cmd, args).PrepareRun().ProbeSensor()
	},
}

func getRootCmd() *cobra.Command {

	ServeCmdFlags(ServeCmd)
	RootCmd.AddCommand(ServeCmd)

	InitCmdFlags(InitCmd)
	RootCmd.AddCommand(InitCmd)

	ProbeCmdFlags(ProbeCmd)
	RootCmd.AddCommand(ProbeCmd)

	return RootCmd
}

func Execute() {
	rootCmd := getRootCmd()
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

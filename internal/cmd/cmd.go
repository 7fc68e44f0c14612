package cmd

import (
	"github.com/spf13/cobra"
	"imucap/internal/config"
	"imucap/internal/monitor"
	"imucap/internal/server"
	"imucap/pkg/version"
	"os"
	"strconv"
	"time"
)

const defaultMonitorInterval = 100

func ServeCmdRunE(cmd *cobra.Command, args []string) error {
	app, err := server.NewMainApp(cmd, args).PrepareRun()
	if err != nil {
		return err
	}
	return app.Run()
}

func ServeCmdFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().Int64P("port", "p", config.DefaultAPIPort, "port that the status api listen on")
	cmd.Flags().StringP("interface", "i", config.DefaultAPIInterface, "interface that the status api listen on, default to 0.0.0.0")
	cmd.Flags().StringP("bus", "b", config.DefaultBusDriver, "bus driver, sim or periph")
	cmd.Flags().Int64P("count", "n", 0, "stop after n samples, 0 runs until interrupted")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "serve",
		SuggestFor: []string{
			"ru", "ser",
		},
		Short: "serve start the IMU acquisition using predefined configs.",
		Long: `serve start the IMU acquisition using predefined configs, by the following order:
1. path specified in --config flag
2. path defined IMUCAP_CONFIG environment variable
3. default location $HOME/.config/imucap/config.yaml, /etc/imucap/config.yaml, current directory
The parameters in the configuration file will be overwritten by the following order:
1. command line arguments
2. environment variables
`,
		Example: `  imucap serve --config=/path/to/config
  imucap serve --bus periph -n 1000`,
		RunE: ServeCmdRunE,
	}
	ServeCmdFlags(cmd)
	return cmd
}

func InitCmdFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("print", false, "print config to stdout")
	cmd.Flags().BoolP("yes", "y", false, "overwrite")
	cmd.Flags().StringP("output", "o", config.DefaultConfig, "specify output directory")
	cmd.Flags().String("config", "", "config file to rewrite with --update")
	cmd.Flags().Bool("update", false, "rewrite the config file in use with every resolved option")
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "init",
		SuggestFor: []string{
			"ini", "in",
		},
		Short: "init create a configuration template",
		Long: `init create a configuration template.
The configuration file can be used to launch the acquisition.
If --print flag is present, the configuration will be printed to stdout.
If --output / -o flag is present, the configuration will be saved to the path specified
Otherwise init will output configuration file to $HOME/.config/imucap/config.yaml
If --yes / -y flag is present, the configuration will be overwrite without confirmation
If --update flag is present, the config file found by the serve lookup order is rewritten in place
with flags, environment variables and defaults merged in
`,
		Example: `  imucap init --print
  imucap init --output /path/to/config.yaml
  imucap init -o /path/to/config.yaml -y
  imucap init --config /path/to/config.yaml --update`,
		RunE: config.InitCfg,
	}
	InitCmdFlags(cmd)
	return cmd
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "probe",
		SuggestFor: []string{
			"pro", "pr", "prob",
		},
		Short: "probe the compatible devices",
		Long: `probe the compatible devices.
The probe command will scan the configured I2C bus and print every responding address to stdout.
Addresses answering WHO_AM_I with 0x68 are marked as mpu6050.
`,
		Example: `  imucap probe
  imucap probe --bus periph`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := server.NewMainApp(cmd, args).PrepareRun()
			if err != nil {
				return err
			}
			return app.ProbeSensor()
		},
	}
	cmd.Flags().String("config", "", "default configuration path")
	cmd.Flags().StringP("bus", "b", config.DefaultBusDriver, "bus driver, sim or periph")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
	return cmd
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "monitor show live samples of a running serve instance",
		Example: `  imucap monitor
  imucap monitor --address http://192.168.1.10:18889`,
		RunE: func(cmd *cobra.Command, args []string) error {
			address, _ := cmd.Flags().GetString("address")
			intervalMs, _ := cmd.Flags().GetInt("interval")
			return monitor.Run(address, time.Duration(intervalMs)*time.Millisecond)
		},
	}
	cmd.Flags().StringP("address", "a", "http://127.0.0.1:"+strconv.Itoa(config.DefaultAPIPort), "status api address")
	cmd.Flags().Int("interval", defaultMonitorInterval, "refresh interval in ms")
	return cmd
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     config.DefaultAppName,
		Short:   "IMU acquisition over I2C",
		Long:    "imucap reads an MPU6050 over I2C and reports acceleration and angular rate at a fixed interval",
		Version: version.GitVersion,
	}
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newMonitorCmd())
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

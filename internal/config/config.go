package config

import (
	"bufio"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"imucap/internal/bus"
	"imucap/internal/utils"
	"os"
	"path"
	"strings"
)

const DefaultAppName = "imucap"
const DefaultConfigName = "config"
const DefaultGRPCInterface = "0.0.0.0"
const DefaultGRPCPort = 18890
const DefaultAPIInterface = "0.0.0.0"
const DefaultAPIPort = 18889

const DefaultBusDriver = bus.DriverSim
const DefaultDeviceAddress = 0x68
const DefaultAccelRange = "4g"
const DefaultGyroRange = "500dps"
const DefaultIntervalMs = 10
const DefaultSerialBaud = 115200

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config/"+DefaultAppName+"/"+DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"
const DefaultConfigSearchPath3 = "/config"

type GRPCOpt struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	Interface string `yaml:"interface" mapstructure:"interface"`
}

type APIOpt struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	Interface string `yaml:"interface" mapstructure:"interface"`
}

type BusOpt struct {
	Driver    string `yaml:"driver" mapstructure:"driver"`
	Name      string `yaml:"name" mapstructure:"name"`
	SCLPin    int    `yaml:"scl_pin" mapstructure:"scl_pin"`
	SDAPin    int    `yaml:"sda_pin" mapstructure:"sda_pin"`
	ClockHz   int    `yaml:"clock_hz" mapstructure:"clock_hz"`
	SCLPullup bool   `yaml:"scl_pullup" mapstructure:"scl_pullup"`
	SDAPullup bool   `yaml:"sda_pullup" mapstructure:"sda_pullup"`
	GPIOChip  string `yaml:"gpio_chip" mapstructure:"gpio_chip"`
	IdleCheck bool   `yaml:"idle_check" mapstructure:"idle_check"`
}

type DeviceOpt struct {
	Address    int    `yaml:"address" mapstructure:"address"`
	AccelRange string `yaml:"accel_range" mapstructure:"accel_range"`
	GyroRange  string `yaml:"gyro_range" mapstructure:"gyro_range"`
}

type SamplingOpt struct {
	IntervalMs int   `yaml:"interval_ms" mapstructure:"interval_ms"`
	Count      int64 `yaml:"count" mapstructure:"count"`
}

type ReportOpt struct {
	SerialPort string `yaml:"serial_port" mapstructure:"serial_port"`
	SerialBaud int    `yaml:"serial_baud" mapstructure:"serial_baud"`
}

type IMUCapOpt struct {
	Bus      BusOpt      `yaml:"bus" mapstructure:"bus"`
	Device   DeviceOpt   `yaml:"device" mapstructure:"device"`
	Sampling SamplingOpt `yaml:"sampling" mapstructure:"sampling"`
	Report   ReportOpt   `yaml:"report" mapstructure:"report"`
	GRPC     GRPCOpt     `yaml:"grpc" mapstructure:"grpc"`
	API      APIOpt      `yaml:"api" mapstructure:"api"`
	Debug    bool        `yaml:"debug" mapstructure:"debug"`
}

type IMUCapDesc struct {
	Opt   IMUCapOpt
	Viper *viper.Viper
}

func NewIMUCapDesc() IMUCapDesc {
	return IMUCapDesc{
		Opt:   NewIMUCapOpt(),
		Viper: nil,
	}
}

func NewIMUCapOpt() IMUCapOpt {
	return IMUCapOpt{
		Bus: BusOpt{
			Driver:    DefaultBusDriver,
			SCLPin:    bus.DefaultSCLPin,
			SDAPin:    bus.DefaultSDAPin,
			ClockHz:   bus.DefaultClockHz,
			SCLPullup: true,
			SDAPullup: true,
			GPIOChip:  bus.DefaultGPIOChip,
		},
		Device: DeviceOpt{
			Address:    DefaultDeviceAddress,
			AccelRange: DefaultAccelRange,
			GyroRange:  DefaultGyroRange,
		},
		Sampling: SamplingOpt{
			IntervalMs: DefaultIntervalMs,
		},
		Report: ReportOpt{
			SerialBaud: DefaultSerialBaud,
		},
		GRPC: GRPCOpt{
			Port:      DefaultGRPCPort,
			Interface: DefaultGRPCInterface,
		},
		API: APIOpt{
			Port:      DefaultAPIPort,
			Interface: DefaultAPIInterface,
		},
		Debug: false,
	}
}

func setDefaults(vipCfg *viper.Viper) {
	vipCfg.SetDefault("bus.driver", DefaultBusDriver)
	vipCfg.SetDefault("bus.name", "")
	vipCfg.SetDefault("bus.scl_pin", bus.DefaultSCLPin)
	vipCfg.SetDefault("bus.sda_pin", bus.DefaultSDAPin)
	vipCfg.SetDefault("bus.clock_hz", bus.DefaultClockHz)
	vipCfg.SetDefault("bus.scl_pullup", true)
	vipCfg.SetDefault("bus.sda_pullup", true)
	vipCfg.SetDefault("bus.gpio_chip", bus.DefaultGPIOChip)
	vipCfg.SetDefault("bus.idle_check", false)
	vipCfg.SetDefault("device.address", DefaultDeviceAddress)
	vipCfg.SetDefault("device.accel_range", DefaultAccelRange)
	vipCfg.SetDefault("device.gyro_range", DefaultGyroRange)
	vipCfg.SetDefault("sampling.interval_ms", DefaultIntervalMs)
	vipCfg.SetDefault("sampling.count", 0)
	vipCfg.SetDefault("report.serial_port", "")
	vipCfg.SetDefault("report.serial_baud", DefaultSerialBaud)
	vipCfg.SetDefault("grpc.port", DefaultGRPCPort)
	vipCfg.SetDefault("grpc.interface", DefaultGRPCInterface)
	vipCfg.SetDefault("api.port", DefaultAPIPort)
	vipCfg.SetDefault("api.interface", DefaultAPIInterface)
	vipCfg.SetDefault("debug", false)
}

// bindFlag binds key to the named flag when the command defines it.
func bindFlag(vipCfg *viper.Viper, cmd *cobra.Command, key string, name string) {
	if f := cmd.Flags().Lookup(name); f != nil {
		_ = vipCfg.BindPFlag(key, f)
	}
}

func (o *IMUCapDesc) Parse(cmd *cobra.Command) error {
	vipCfg := viper.New()
	setDefaults(vipCfg)

	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
	} else {
		configFileEnv := os.Getenv("IMUCAP_CONFIG")
		if configFileEnv != "" {
			vipCfg.SetConfigFile(configFileEnv)
		} else {
			vipCfg.SetConfigName(DefaultConfigName)
			vipCfg.SetConfigType("yaml")
			vipCfg.AddConfigPath(DefaultConfigSearchPath0)
			vipCfg.AddConfigPath(DefaultConfigSearchPath1)
			vipCfg.AddConfigPath(DefaultConfigSearchPath2)
			vipCfg.AddConfigPath(DefaultConfigSearchPath3)
		}
	}

	vipCfg.SetEnvPrefix(DefaultAppName)
	vipCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vipCfg.AutomaticEnv()

	bindFlag(vipCfg, cmd, "api.port", "port")
	bindFlag(vipCfg, cmd, "api.interface", "interface")
	bindFlag(vipCfg, cmd, "bus.driver", "bus")
	bindFlag(vipCfg, cmd, "sampling.count", "count")
	bindFlag(vipCfg, cmd, "debug", "debug")

	// If a config file is found, read it in.
	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		log.Debugln(err)
	}

	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	o.Viper = vipCfg
	return o.Opt.Validate()
}

func (o *IMUCapDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// Validate rejects option combinations the acquisition cannot start with.
func (o *IMUCapOpt) Validate() error {
	switch o.Bus.Driver {
	case bus.DriverSim, bus.DriverPeriph:
	default:
		return fmt.Errorf("unknown bus driver %q", o.Bus.Driver)
	}
	if o.Device.Address < 0 || o.Device.Address > 0x7F {
		return fmt.Errorf("device address 0x%X out of range", o.Device.Address)
	}
	if o.Sampling.IntervalMs <= 0 {
		return fmt.Errorf("sampling interval must be positive, got %d", o.Sampling.IntervalMs)
	}
	if o.Report.SerialPort != "" && o.Report.SerialBaud <= 0 {
		return fmt.Errorf("invalid serial baud %d", o.Report.SerialBaud)
	}
	return nil
}

// SaveConfig writes the resolved options back to the config file they were
// read from, filling in every key that was left to its default.
func (o *IMUCapDesc) SaveConfig() error {
	if o.Viper == nil {
		return errors.New("config not parsed")
	}
	p := o.Viper.ConfigFileUsed()
	if p == "" {
		return errors.New("no config file in use")
	}
	buffer, err := yaml.Marshal(o.Opt)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	w := bufio.NewWriter(f)
	if _, err := w.Write(buffer); err != nil {
		return err
	}
	log.Infoln("config written to", p)
	return w.Flush()
}

// InitCfg initConfig prepares config for the application
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")
	updateFlag, _ := cmd.Flags().GetBool("update")

	desc := NewIMUCapDesc()
	err := desc.Parse(cmd)
	if err != nil {
		log.Errorln(err)
		return err
	}

	if printFlag {
		configBuffer, _ := yaml.Marshal(desc.Opt)
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(configBuffer))
		return nil
	}
	if updateFlag {
		return desc.SaveConfig()
	}
	return utils.DumpOption(desc.Opt, outputPath, overwriteFlag, utils.AskForConfirmationDefaultYes)
}

package config

import (
	"bufio"
	"edgeml/internal/utils"
	"fmt"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"os"
	"path"
	"strings"
	"time"
)

const DefaultAppName = "edgeml"
const DefaultConfigName = "config"
const DefaultGRPCInterface = "0.0.0.0"
const DefaultGRPCPort = 18890
const DefaultAPIInterface = "0.0.0.0"
const DefaultAPIPort = 18889

const (
	BackendPeriph = "periph"
	BackendSim    = "sim"
)

const DefaultPeriodMs = 10
const DefaultFaultThreshold = 50
const DefaultDiagIntervalS = 10
const DefaultMaxTransfer = 192
const DefaultBusSpeedKHz = 400
const DefaultIMUAddress = 0x6B
const DefaultMagAddress = 0x1E
const DefaultMaxBurst = 32
const DefaultMaxChunk = 8
const DefaultMicSampleRate = 16000
const DefaultMicMaxBurst = 160
const DefaultReportBaud = 115200

var userHomeDir, _ = os.UserHomeDir()
var DefaultConfig = path.Join(userHomeDir, ".config/"+DefaultAppName+"/"+DefaultConfigName+".yaml")
var DefaultConfigSearchPath0 = path.Join(userHomeDir, ".config", DefaultAppName)

const DefaultConfigSearchPath1 = "/etc/" + DefaultAppName
const DefaultConfigSearchPath2 = "./"
const DefaultConfigSearchPath3 = "/config"

type GRPCOpt struct {
	Port      int    `yaml:"port"`
	Interface string `yaml:"interface"`
}

type APIOpt struct {
	Port      int    `yaml:"port"`
	Interface string `yaml:"interface"`
}

type AcquisitionOpt struct {
	PeriodMs       int `yaml:"period_ms" mapstructure:"period_ms"`
	Priority       int `yaml:"priority"`
	FaultThreshold int `yaml:"fault_threshold" mapstructure:"fault_threshold"`
	DiagIntervalS  int `yaml:"diag_interval_s" mapstructure:"diag_interval_s"`
}

func (o AcquisitionOpt) Period() time.Duration {
	return time.Duration(o.PeriodMs) * time.Millisecond
}

func (o AcquisitionOpt) DiagInterval() time.Duration {
	return time.Duration(o.DiagIntervalS) * time.Second
}

type BusOpt struct {
	Backend     string `yaml:"backend"`
	Name        string `yaml:"name"`
	SpeedKHz    int    `yaml:"speed_khz" mapstructure:"speed_khz"`
	MaxTransfer int    `yaml:"max_transfer" mapstructure:"max_transfer"`
}

type IMUOpt struct {
	Enabled        bool    `yaml:"enabled"`
	Address        int     `yaml:"address"`
	AccelFullScale float32 `yaml:"accel_full_scale" mapstructure:"accel_full_scale"`
	AccelODR       float32 `yaml:"accel_odr" mapstructure:"accel_odr"`
	GyroFullScale  float32 `yaml:"gyro_full_scale" mapstructure:"gyro_full_scale"`
	GyroODR        float32 `yaml:"gyro_odr" mapstructure:"gyro_odr"`
	MaxBurst       int     `yaml:"max_burst" mapstructure:"max_burst"`
	MaxChunk       int     `yaml:"max_chunk" mapstructure:"max_chunk"`
}

type MagOpt struct {
	Enabled   bool    `yaml:"enabled"`
	Address   int     `yaml:"address"`
	FullScale float32 `yaml:"full_scale" mapstructure:"full_scale"`
	ODR       float32 `yaml:"odr"`
}

type MicOpt struct {
	Enabled    bool   `yaml:"enabled"`
	Source     string `yaml:"source"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate"`
	MaxBurst   int    `yaml:"max_burst" mapstructure:"max_burst"`
}

type DevicesOpt struct {
	IMU        IMUOpt `yaml:"imu"`
	Mag        MagOpt `yaml:"mag"`
	Microphone MicOpt `yaml:"microphone"`
}

type EngineOpt struct {
	Manifest             string `yaml:"manifest"`
	PredictionIntervalMs int    `yaml:"prediction_interval_ms" mapstructure:"prediction_interval_ms"`
}

func (o EngineOpt) PredictionInterval() time.Duration {
	return time.Duration(o.PredictionIntervalMs) * time.Millisecond
}

type ReportOpt struct {
	Serial string `yaml:"serial"`
	Baud   int    `yaml:"baud"`
}

type EdgeMLOpt struct {
	GRPC        GRPCOpt        `yaml:"grpc"`
	API         APIOpt         `yaml:"api"`
	Acquisition AcquisitionOpt `yaml:"acquisition"`
	Bus         BusOpt         `yaml:"bus"`
	Devices     DevicesOpt     `yaml:"devices"`
	Engine      EngineOpt      `yaml:"engine"`
	Report      ReportOpt      `yaml:"report"`
	Debug       bool           `yaml:"debug"`
}

type EdgeMLDesc struct {
	Opt   EdgeMLOpt
	Viper *viper.Viper
}

func NewEdgeMLDesc() EdgeMLDesc {
	return EdgeMLDesc{
		Opt:   NewEdgeMLOpt(),
		Viper: nil,
	}
}

func NewEdgeMLOpt() EdgeMLOpt {
	return EdgeMLOpt{
		GRPC: GRPCOpt{
			Port:      DefaultGRPCPort,
			Interface: DefaultGRPCInterface,
		},
		API: APIOpt{
			Port:      DefaultAPIPort,
			Interface: DefaultAPIInterface,
		},
		Acquisition: AcquisitionOpt{
			PeriodMs:       DefaultPeriodMs,
			FaultThreshold: DefaultFaultThreshold,
			DiagIntervalS:  DefaultDiagIntervalS,
		},
		Bus: BusOpt{
			Backend:     BackendPeriph,
			SpeedKHz:    DefaultBusSpeedKHz,
			MaxTransfer: DefaultMaxTransfer,
		},
		Devices: DevicesOpt{
			IMU: IMUOpt{
				Enabled:        true,
				Address:        DefaultIMUAddress,
				AccelFullScale: 16,
				AccelODR:       952,
				GyroFullScale:  2000,
				GyroODR:        952,
				MaxBurst:       DefaultMaxBurst,
				MaxChunk:       DefaultMaxChunk,
			},
			Mag: MagOpt{
				Enabled:   true,
				Address:   DefaultMagAddress,
				FullScale: 16,
				ODR:       100,
			},
			Microphone: MicOpt{
				Enabled:    false,
				Source:     "-",
				SampleRate: DefaultMicSampleRate,
				MaxBurst:   DefaultMicMaxBurst,
			},
		},
		Engine: EngineOpt{},
		Report: ReportOpt{
			Baud: DefaultReportBaud,
		},
		Debug: false,
	}
}

// setDefaults registers every default of NewEdgeMLOpt so that environment
// variables can override keys absent from the config file
func setDefaults(vipCfg *viper.Viper) {
	def := NewEdgeMLOpt()
	vipCfg.SetDefault("grpc.port", def.GRPC.Port)
	vipCfg.SetDefault("grpc.interface", def.GRPC.Interface)
	vipCfg.SetDefault("api.port", def.API.Port)
	vipCfg.SetDefault("api.interface", def.API.Interface)
	vipCfg.SetDefault("acquisition.period_ms", def.Acquisition.PeriodMs)
	vipCfg.SetDefault("acquisition.priority", def.Acquisition.Priority)
	vipCfg.SetDefault("acquisition.fault_threshold", def.Acquisition.FaultThreshold)
	vipCfg.SetDefault("acquisition.diag_interval_s", def.Acquisition.DiagIntervalS)
	vipCfg.SetDefault("bus.backend", def.Bus.Backend)
	vipCfg.SetDefault("bus.name", def.Bus.Name)
	vipCfg.SetDefault("bus.speed_khz", def.Bus.SpeedKHz)
	vipCfg.SetDefault("bus.max_transfer", def.Bus.MaxTransfer)
	vipCfg.SetDefault("devices.imu.enabled", def.Devices.IMU.Enabled)
	vipCfg.SetDefault("devices.imu.address", def.Devices.IMU.Address)
	vipCfg.SetDefault("devices.imu.accel_full_scale", def.Devices.IMU.AccelFullScale)
	vipCfg.SetDefault("devices.imu.accel_odr", def.Devices.IMU.AccelODR)
	vipCfg.SetDefault("devices.imu.gyro_full_scale", def.Devices.IMU.GyroFullScale)
	vipCfg.SetDefault("devices.imu.gyro_odr", def.Devices.IMU.GyroODR)
	vipCfg.SetDefault("devices.imu.max_burst", def.Devices.IMU.MaxBurst)
	vipCfg.SetDefault("devices.imu.max_chunk", def.Devices.IMU.MaxChunk)
	vipCfg.SetDefault("devices.mag.enabled", def.Devices.Mag.Enabled)
	vipCfg.SetDefault("devices.mag.address", def.Devices.Mag.Address)
	vipCfg.SetDefault("devices.mag.full_scale", def.Devices.Mag.FullScale)
	vipCfg.SetDefault("devices.mag.odr", def.Devices.Mag.ODR)
	vipCfg.SetDefault("devices.microphone.enabled", def.Devices.Microphone.Enabled)
	vipCfg.SetDefault("devices.microphone.source", def.Devices.Microphone.Source)
	vipCfg.SetDefault("devices.microphone.sample_rate", def.Devices.Microphone.SampleRate)
	vipCfg.SetDefault("devices.microphone.max_burst", def.Devices.Microphone.MaxBurst)
	vipCfg.SetDefault("engine.manifest", def.Engine.Manifest)
	vipCfg.SetDefault("engine.prediction_interval_ms", def.Engine.PredictionIntervalMs)
	vipCfg.SetDefault("report.serial", def.Report.Serial)
	vipCfg.SetDefault("report.baud", def.Report.Baud)
	vipCfg.SetDefault("debug", def.Debug)
}

func (o *EdgeMLDesc) Parse(cmd *cobra.Command) error {
	vipCfg := viper.New()
	setDefaults(vipCfg)

	if configFileCmd, err := cmd.Flags().GetString("config"); err == nil && configFileCmd != "" {
		vipCfg.SetConfigFile(configFileCmd)
	} else {
		configFileEnv := os.Getenv("EDGEML_CONFIG")
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

	if f := cmd.Flags().Lookup("port"); f != nil {
		_ = vipCfg.BindPFlag("api.port", f)
	}
	if f := cmd.Flags().Lookup("interface"); f != nil {
		_ = vipCfg.BindPFlag("api.interface", f)
	}
	if f := cmd.Flags().Lookup("debug"); f != nil {
		_ = vipCfg.BindPFlag("debug", f)
	}
	if f := cmd.Flags().Lookup("sim"); f != nil && f.Changed {
		vipCfg.Set("bus.backend", BackendSim)
	}

	// If a config file is found, read it in.
	if err := vipCfg.ReadInConfig(); err == nil {
		log.Debugln("using config file:", vipCfg.ConfigFileUsed())
	} else {
		log.Warnln(err)
	}

	if err := vipCfg.Unmarshal(&o.Opt); err != nil {
		return errors.Wrap(err, "failed to unmarshal config")
	}

	o.Viper = vipCfg
	return o.Opt.Validate()
}

// Validate checks option combinations viper cannot
func (o *EdgeMLOpt) Validate() error {
	switch o.Bus.Backend {
	case BackendPeriph, BackendSim:
	default:
		return errors.Errorf("unknown bus backend %q", o.Bus.Backend)
	}
	if o.Acquisition.PeriodMs <= 0 {
		return errors.Errorf("acquisition.period_ms must be positive, got %d", o.Acquisition.PeriodMs)
	}
	if o.Acquisition.Priority < -20 || o.Acquisition.Priority > 19 {
		return errors.Errorf("acquisition.priority %d out of range [-20, 19]", o.Acquisition.Priority)
	}
	if o.Bus.MaxTransfer <= 0 {
		return errors.Errorf("bus.max_transfer must be positive, got %d", o.Bus.MaxTransfer)
	}
	return nil
}

func (o *EdgeMLDesc) PostParse() {
	if o.Opt.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func (o *EdgeMLDesc) SaveConfig() error {
	if o.Viper == nil {
		return errors.New("viper is nil")
	}
	f, err := os.OpenFile(o.Viper.ConfigFileUsed(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	w := bufio.NewWriter(f)
	s, _ := yaml.Marshal(o.Opt)
	_, err = w.Write(s)
	if err != nil {
		return err
	}
	return w.Flush()
}

// InitCfg initConfig prepares config for the application
func InitCfg(cmd *cobra.Command, _ []string) error {
	printFlag, _ := cmd.Flags().GetBool("print")
	outputPath, _ := cmd.Flags().GetString("output")
	overwriteFlag, _ := cmd.Flags().GetBool("yes")

	desc := NewEdgeMLDesc()
	err := desc.Parse(cmd)
	if err != nil {
		log.Errorln(err)
		return err
	}

	if printFlag {
		configBuffer, _ := yaml.Marshal(desc.Opt)
		fmt.Println(string(configBuffer))
		return nil
	}
	return utils.DumpOption(desc.Opt, outputPath, overwriteFlag)
}

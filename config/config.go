// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}

	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	// Session holds the defaults used when a caller does not supply a value
	Session struct {
		ResultsDir      string        `yaml:"resultsDir"`
		MeasureInterval time.Duration `yaml:"measureInterval"`
		StabilityWindow time.Duration `yaml:"stabilityWindow"`
		ProjectName     string        `yaml:"projectName"`
		Scenario        string        `yaml:"scenario"`

		// TrackingMode is either "machine" or "process"; empty means it is
		// derived from whether HTTP control is enabled
		TrackingMode string `yaml:"trackingMode"`
	}

	// AutoStart starts a session on the first request served
	AutoStart struct {
		Enabled         *bool         `yaml:"enabled"`
		Scenario        string        `yaml:"scenario"`
		MeasureInterval time.Duration `yaml:"measureInterval"`
	}

	// Control configures the HTTP control surface and the CLI relay to it
	Control struct {
		Enabled *bool         `yaml:"enabled"`
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
		Token   string        `yaml:"token"`
	}

	Device struct {
		Meter  string `yaml:"meter"`
		SysFS  string `yaml:"sysfs"`
		ProcFS string `yaml:"procfs"`

		// EmissionFactor is expressed in kg CO2e per kWh
		EmissionFactor float64 `yaml:"emissionFactor"`
	}

	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
	}

	StdoutExporter struct {
		Enabled  *bool         `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
	}

	PprofDebug struct {
		Enabled *bool `yaml:"enabled"`
	}

	Debug struct {
		Pprof PprofDebug `yaml:"pprof"`
	}

	Config struct {
		Log       Log       `yaml:"log"`
		Web       Web       `yaml:"web"`
		Session   Session   `yaml:"session"`
		AutoStart AutoStart `yaml:"autoStart"`
		Control   Control   `yaml:"control"`
		Device    Device    `yaml:"device"`
		Exporter  Exporter  `yaml:"exporter"`
		Debug     Debug     `yaml:"debug"`
	}
)

const (
	MeterRAPL = "rapl"
	MeterFake = "fake"

	TrackingModeMachine = "machine"
	TrackingModeProcess = "process"

	// TokenHeader carries the shared secret of the HTTP control surface
	TokenHeader = "X-CodeCarbon-Token"

	DefaultPort            = ":8080"
	DefaultResultsDir      = "/usr/src/app/k6/results"
	DefaultProjectName     = "url-shortener"
	DefaultScenario        = "web"
	DefaultControlURL      = "http://127.0.0.1:8080/_carbon"
	DefaultMeasureInterval = time.Second
	DefaultStabilityWindow = 5 * time.Second
	DefaultControlTimeout  = 10 * time.Second

	// DefaultEmissionFactor is a world average grid intensity in kg CO2e/kWh
	DefaultEmissionFactor = 0.475
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	WebConfigFlag        = "web.config-file"
	WebListenAddressFlag = "web.listen-address"

	pprofEnabledFlag = "debug.pprof"

	ExporterStdoutEnabledFlag     = "exporter.stdout"
	ExporterStdoutIntervalFlag    = "exporter.stdout.interval"
	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	// NOTE: not a flag
	ExporterPrometheusDebugCollectors = "exporter.prometheus.debug-collectors"

	SessionResultsDirFlag      = "session.results-dir"
	SessionMeasureIntervalFlag = "session.measure-interval"
	SessionStabilityFlag       = "session.stability-window"
	SessionProjectNameFlag     = "session.project-name"
	SessionTrackingMode        = "session.tracking-mode" // not a flag

	AutoStartFlag = "auto-start"

	ControlEnabledFlag = "control.enabled"
	ControlURLFlag     = "control.url"
	ControlTimeoutFlag = "control.timeout"
	ControlToken       = "control.token" // not a flag, keep secrets out of argv

	DeviceMeterFlag          = "device.meter"
	DeviceSysFSFlag          = "device.sysfs"
	DeviceProcFSFlag         = "device.procfs"
	DeviceEmissionFactorFlag = "device.emission-factor"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Web: Web{
			ListenAddresses: []string{DefaultPort},
		},
		Session: Session{
			ResultsDir:      DefaultResultsDir,
			MeasureInterval: DefaultMeasureInterval,
			StabilityWindow: DefaultStabilityWindow,
			ProjectName:     DefaultProjectName,
			Scenario:        DefaultScenario,
		},
		AutoStart: AutoStart{
			Enabled: ptr.To(false),
		},
		Control: Control{
			Enabled: ptr.To(true),
			URL:     DefaultControlURL,
			Timeout: DefaultControlTimeout,
		},
		Device: Device{
			Meter:          MeterRAPL,
			SysFS:          "/sys",
			ProcFS:         "/proc",
			EmissionFactor: DefaultEmissionFactor,
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled:  ptr.To(false),
				Interval: 5 * time.Second,
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(true),
				DebugCollectors: []string{"go"},
			},
		},
		Debug: Debug{
			Pprof: PprofDebug{
				Enabled: ptr.To(false),
			},
		},
	}
	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (cfg *Config, errRet error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && errRet == nil {
			errRet = err
		}
	}()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")

	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(DefaultPort).Strings()
	enablePprof := app.Flag(pprofEnabledFlag, "Enable pprof debug endpoints").Default("false").Bool()
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Print the session status to stdout while serving").Default("false").Bool()
	stdoutExporterInterval := app.Flag(ExporterStdoutIntervalFlag, "Interval of the stdout status table").Default("5s").Duration()
	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("true").Bool()

	// session defaults
	resultsDir := app.Flag(SessionResultsDirFlag, "Default directory for raw emission records").Default(DefaultResultsDir).String()
	measureInterval := app.Flag(SessionMeasureIntervalFlag, "Default sampling interval of the energy tracker").Default("1s").Duration()
	stabilityWindow := app.Flag(SessionStabilityFlag,
		"Default quiet period a workload summary must not grow for before it is parsed").Default("5s").Duration()
	projectName := app.Flag(SessionProjectNameFlag, "Project label prefix reported to the energy tracker").Default(DefaultProjectName).String()

	autoStart := app.Flag(AutoStartFlag, "Start a session on the first request served").Default("false").Bool()

	// control surface
	controlEnabled := app.Flag(ControlEnabledFlag, "Relay CLI commands to the HTTP control surface").Default("true").Bool()
	controlURL := app.Flag(ControlURLFlag, "Base URL of the HTTP control surface").Default(DefaultControlURL).String()
	controlTimeout := app.Flag(ControlTimeoutFlag, "Timeout of relayed control requests").Default("10s").Duration()

	// device
	meter := app.Flag(DeviceMeterFlag, "Energy meter backing the tracker: rapl or fake").Default(MeterRAPL).Enum(MeterRAPL, MeterFake)
	sysfs := app.Flag(DeviceSysFSFlag, "Host sysfs path").Default("/sys").String()
	procfs := app.Flag(DeviceProcFSFlag, "Host procfs path").Default("/proc").String()
	emissionFactor := app.Flag(DeviceEmissionFactorFlag, "Grid carbon intensity in kg CO2e per kWh").Default("0.475").Float64()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}

		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[pprofEnabledFlag] {
			cfg.Debug.Pprof.Enabled = enablePprof
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}
		if flagsSet[ExporterStdoutIntervalFlag] {
			cfg.Exporter.Stdout.Interval = *stdoutExporterInterval
		}

		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}

		if flagsSet[SessionResultsDirFlag] {
			cfg.Session.ResultsDir = *resultsDir
		}
		if flagsSet[SessionMeasureIntervalFlag] {
			cfg.Session.MeasureInterval = *measureInterval
		}
		if flagsSet[SessionStabilityFlag] {
			cfg.Session.StabilityWindow = *stabilityWindow
		}
		if flagsSet[SessionProjectNameFlag] {
			cfg.Session.ProjectName = *projectName
		}

		if flagsSet[AutoStartFlag] {
			cfg.AutoStart.Enabled = autoStart
		}

		if flagsSet[ControlEnabledFlag] {
			cfg.Control.Enabled = controlEnabled
		}
		if flagsSet[ControlURLFlag] {
			cfg.Control.URL = *controlURL
		}
		if flagsSet[ControlTimeoutFlag] {
			cfg.Control.Timeout = *controlTimeout
		}

		if flagsSet[DeviceMeterFlag] {
			cfg.Device.Meter = *meter
		}
		if flagsSet[DeviceSysFSFlag] {
			cfg.Device.SysFS = *sysfs
		}
		if flagsSet[DeviceProcFSFlag] {
			cfg.Device.ProcFS = *procfs
		}
		if flagsSet[DeviceEmissionFactorFlag] {
			cfg.Device.EmissionFactor = *emissionFactor
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	for i := range c.Web.ListenAddresses {
		c.Web.ListenAddresses[i] = strings.TrimSpace(c.Web.ListenAddresses[i])
	}
	for i := range c.Exporter.Prometheus.DebugCollectors {
		c.Exporter.Prometheus.DebugCollectors[i] = strings.TrimSpace(c.Exporter.Prometheus.DebugCollectors[i])
	}

	c.Session.ResultsDir = strings.TrimSpace(c.Session.ResultsDir)
	c.Session.ProjectName = strings.TrimSpace(c.Session.ProjectName)
	c.Session.Scenario = strings.TrimSpace(c.Session.Scenario)
	c.Session.TrackingMode = strings.ToLower(strings.TrimSpace(c.Session.TrackingMode))
	c.AutoStart.Scenario = strings.TrimSpace(c.AutoStart.Scenario)

	c.Control.URL = strings.TrimRight(strings.TrimSpace(c.Control.URL), "/")
	c.Control.Token = strings.TrimSpace(c.Control.Token)

	c.Device.Meter = strings.ToLower(strings.TrimSpace(c.Device.Meter))
	c.Device.SysFS = strings.TrimSpace(c.Device.SysFS)
	c.Device.ProcFS = strings.TrimSpace(c.Device.ProcFS)
}

// Validate checks for configuration errors
func (c *Config) Validate() error {
	var errs []string
	{ // log level
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}
	{ // Web config file
		if c.Web.Config != "" {
			if err := canReadFile(c.Web.Config); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web config file. path: %q: %s", c.Web.Config, err.Error()))
			}
		}
	}
	{ // Web listen addresses
		if len(c.Web.ListenAddresses) == 0 {
			errs = append(errs, "at least one web listen address must be specified")
		}
		for _, addr := range c.Web.ListenAddresses {
			if addr == "" {
				errs = append(errs, "web listen address cannot be empty")
				continue
			}
			if err := validateListenAddress(addr); err != nil {
				errs = append(errs, fmt.Sprintf("invalid web listen address %q: %s", addr, err.Error()))
			}
		}
	}
	{ // Session
		if c.Session.MeasureInterval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid session measure interval: %s must be positive", c.Session.MeasureInterval))
		}
		if c.Session.StabilityWindow < 0 {
			errs = append(errs, fmt.Sprintf("invalid session stability window: %s can't be negative", c.Session.StabilityWindow))
		}
		switch c.Session.TrackingMode {
		case "", TrackingModeMachine, TrackingModeProcess:
		default:
			errs = append(errs, fmt.Sprintf("invalid session tracking mode: %s", c.Session.TrackingMode))
		}
		if c.AutoStart.MeasureInterval < 0 {
			errs = append(errs, fmt.Sprintf("invalid auto-start measure interval: %s can't be negative", c.AutoStart.MeasureInterval))
		}
	}
	{ // Control
		if c.Control.URL != "" {
			if u, err := url.Parse(c.Control.URL); err != nil {
				errs = append(errs, fmt.Sprintf("invalid control url %q: %s", c.Control.URL, err.Error()))
			} else if u.Scheme != "http" && u.Scheme != "https" {
				errs = append(errs, fmt.Sprintf("invalid control url %q: scheme must be http or https", c.Control.URL))
			}
		}
		if c.Control.Timeout <= 0 {
			errs = append(errs, fmt.Sprintf("invalid control timeout: %s must be positive", c.Control.Timeout))
		}
	}
	{ // Exporters
		if ptr.Deref(c.Exporter.Stdout.Enabled, false) && c.Exporter.Stdout.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid stdout exporter interval: %s must be positive", c.Exporter.Stdout.Interval))
		}
	}
	{ // Device
		switch c.Device.Meter {
		case MeterRAPL, MeterFake:
		default:
			errs = append(errs, fmt.Sprintf("invalid device meter: %s", c.Device.Meter))
		}
		if c.Device.EmissionFactor < 0 {
			errs = append(errs, fmt.Sprintf("invalid device emission factor: %g can't be negative", c.Device.EmissionFactor))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()
	buf := make([]byte, 8)
	_, err = f.Read(buf)
	return err
}

func validateListenAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", portNum)
	}
	return nil
}

func (c *Config) String() string {
	// redact the shared secret before dumping
	redacted := *c
	if redacted.Control.Token != "" {
		redacted.Control.Token = "********"
	}
	bytes, err := yaml.Marshal(&redacted)
	if err == nil {
		return string(bytes)
	}
	// NOTE:  this code path should not happen but if it does (i.e if yaml marshal) fails
	// for some reason, manually build the string
	return redacted.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{WebConfigFlag, c.Web.Config},
		{WebListenAddressFlag, strings.Join(c.Web.ListenAddresses, ", ")},
		{pprofEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Debug.Pprof.Enabled, false))},
		{ExporterStdoutEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.Enabled, false))},
		{ExporterStdoutIntervalFlag, c.Exporter.Stdout.Interval.String()},
		{ExporterPrometheusEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Prometheus.Enabled, false))},
		{ExporterPrometheusDebugCollectors, strings.Join(c.Exporter.Prometheus.DebugCollectors, ", ")},
		{SessionResultsDirFlag, c.Session.ResultsDir},
		{SessionMeasureIntervalFlag, c.Session.MeasureInterval.String()},
		{SessionStabilityFlag, c.Session.StabilityWindow.String()},
		{SessionProjectNameFlag, c.Session.ProjectName},
		{SessionTrackingMode, c.Session.TrackingMode},
		{AutoStartFlag, fmt.Sprintf("%v", ptr.Deref(c.AutoStart.Enabled, false))},
		{ControlEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Control.Enabled, false))},
		{ControlURLFlag, c.Control.URL},
		{ControlTimeoutFlag, c.Control.Timeout.String()},
		{ControlToken, c.Control.Token},
		{DeviceMeterFlag, c.Device.Meter},
		{DeviceSysFSFlag, c.Device.SysFS},
		{DeviceProcFSFlag, c.Device.ProcFS},
		{DeviceEmissionFactorFlag, strconv.FormatFloat(c.Device.EmissionFactor, 'g', -1, 64)},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}

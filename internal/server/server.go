package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tarm/serial"
	"google.golang.org/grpc"
	"imucap/internal/acquisition"
	"imucap/internal/bus"
	"imucap/internal/clock"
	"imucap/internal/config"
	"imucap/internal/controller/api"
	grpc2 "imucap/internal/controller/grpc"
	"imucap/internal/sensor"
	"imucap/internal/sensor/mpu6050"
	"imucap/pkg/version"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

const probeFirstAddress = 0x08
const probeLastAddress = 0x77
const shutdownTimeout = 5 * time.Second

type mainApp struct {
	name string
	cmd  *cobra.Command
	args []string
	opt  *config.IMUCapOpt
}

func busConfig(opt *config.IMUCapOpt) bus.Config {
	return bus.Config{
		Name:      opt.Bus.Name,
		SCLPin:    opt.Bus.SCLPin,
		SDAPin:    opt.Bus.SDAPin,
		ClockHz:   opt.Bus.ClockHz,
		SCLPullup: opt.Bus.SCLPullup,
		SDAPullup: opt.Bus.SDAPullup,
		GPIOChip:  opt.Bus.GPIOChip,
		IdleCheck: opt.Bus.IdleCheck,
	}
}

func buildOptions(opt *config.IMUCapOpt) (acquisition.Options, error) {
	accel, err := sensor.ParseAccelRange(opt.Device.AccelRange)
	if err != nil {
		return acquisition.Options{}, err
	}
	gyro, err := sensor.ParseGyroRange(opt.Device.GyroRange)
	if err != nil {
		return acquisition.Options{}, err
	}
	return acquisition.Options{
		Bus:      busConfig(opt),
		Address:  uint16(opt.Device.Address),
		Device:   sensor.Config{AccelRange: accel, GyroRange: gyro},
		Interval: time.Duration(opt.Sampling.IntervalMs) * time.Millisecond,
		Count:    opt.Sampling.Count,
	}, nil
}

// newBus creates the configured bus. The simulated bus comes with an
// emulated MPU6050 at the configured address.
func newBus(opt *config.IMUCapOpt) (bus.Bus, error) {
	b, err := bus.New(opt.Bus.Driver)
	if err != nil {
		return nil, err
	}
	if sim, ok := b.(*bus.SimBus); ok {
		sim.Attach(uint16(opt.Device.Address), mpu6050.NewEmulator())
	}
	return b, nil
}

// newReporter always logs; with a serial port configured, report lines are
// mirrored to it as well.
func newReporter(opt *config.IMUCapOpt) (acquisition.Reporter, io.Closer, error) {
	if opt.Report.SerialPort == "" {
		return acquisition.LogReporter{}, nil, nil
	}
	port, err := serial.OpenPort(&serial.Config{Name: opt.Report.SerialPort, Baud: opt.Report.SerialBaud})
	if err != nil {
		return nil, nil, fmt.Errorf("open report port %s: %w", opt.Report.SerialPort, err)
	}
	log.Infoln("mirroring reports to", opt.Report.SerialPort)
	return acquisition.MultiReporter{acquisition.LogReporter{}, acquisition.NewWriterReporter(port)}, port, nil
}

func (a *mainApp) ProbeSensor() error {
	if a.opt.Bus.Driver == bus.DriverPeriph {
		names, err := bus.ListPeriph()
		if err != nil {
			log.Errorln(err)
			return err
		}
		log.Infof("i2c buses: %v", names)
	}

	b, err := newBus(a.opt)
	if err != nil {
		return err
	}
	if err := b.Configure(busConfig(a.opt)); err != nil {
		log.Errorln("bus config failed:", err)
		return err
	}
	if err := b.Activate(); err != nil {
		log.Errorln("bus install failed:", err)
		return err
	}
	defer func() {
		if err := b.Deactivate(); err != nil {
			log.Errorln("failed to delete bus driver:", err)
		}
	}()

	log.Infoln("Probing I2C devices...")
	found := bus.Scan(b, probeFirstAddress, probeLastAddress)
	if len(found) == 0 {
		err := errors.New("no devices found")
		log.Errorln(err)
		return err
	}
	log.Infof("Found %d I2C devices:", len(found))
	out := a.cmd.OutOrStdout()
	for _, addr := range found {
		label := ""
		if ok, _ := mpu6050.Probe(b, addr); ok {
			label = " (mpu6050)"
		}
		_, _ = fmt.Fprintf(out, "- 0x%02X%s\n", addr, label)
	}
	return nil
}

func (a *mainApp) GetOpt() *config.IMUCapOpt {
	return a.opt
}

func (a *mainApp) SetOpt(opt *config.IMUCapOpt) { a.opt = opt }

func (a *mainApp) Run() error {
	log.Infoln("version:", version.GitVersion)
	log.Infoln("bus.driver:", a.opt.Bus.Driver)
	log.Infoln("bus.name:", a.opt.Bus.Name)
	log.Infof("bus.pins: scl=%d sda=%d", a.opt.Bus.SCLPin, a.opt.Bus.SDAPin)
	log.Infoln("bus.clock_hz:", a.opt.Bus.ClockHz)
	log.Infof("device.address: 0x%02X", a.opt.Device.Address)
	log.Infof("device.range: %s %s", a.opt.Device.AccelRange, a.opt.Device.GyroRange)
	log.Infoln("sampling.interval_ms:", a.opt.Sampling.IntervalMs)
	log.Infoln("grpc:", a.opt.GRPC.Interface+":"+strconv.Itoa(a.opt.GRPC.Port))
	log.Infoln("api:", a.opt.API.Interface+":"+strconv.Itoa(a.opt.API.Port))
	log.Infoln("debug:", a.opt.Debug)

	acqOpt, err := buildOptions(a.opt)
	if err != nil {
		log.Errorln(err)
		return err
	}
	b, err := newBus(a.opt)
	if err != nil {
		log.Errorln(err)
		return err
	}
	reporter, closer, err := newReporter(a.opt)
	if err != nil {
		log.Errorln(err)
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	sess := acquisition.NewSession(acqOpt, b, mpu6050.Driver{}, clock.New(), reporter)

	// install and start grpc health server
	hs := grpc2.NewHealthServer()
	sess.SetListener(grpc2.NewHealthListener(hs))
	s := grpc.NewServer()
	grpc2.Register(s, hs)
	listener, err := net.Listen("tcp", a.opt.GRPC.Interface+":"+strconv.Itoa(a.opt.GRPC.Port))
	if err != nil {
		log.Errorln("net listen err ", err)
		return err
	}
	log.Info("start gRPC listen on ", listener.Addr())
	go func() {
		if err := s.Serve(listener); err != nil {
			log.Errorln("failed to serve...", err)
		}
	}()
	defer s.GracefulStop()

	// install and start api server
	if !a.opt.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	apiListener, err := net.Listen("tcp", a.opt.API.Interface+":"+strconv.Itoa(a.opt.API.Port))
	if err != nil {
		log.Errorln("net listen err ", err)
		return err
	}
	apiServer := &http.Server{Handler: api.NewRouter(sess)}
	log.Info("start api listen on ", apiListener.Addr())
	go func() {
		if err := apiServer.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorln("failed to serve api...", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = apiServer.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := sess.Acquire(ctx)
	snap := sess.Snapshot()
	log.Infof("acquisition finished: init=%s teardown=%s iterations=%d", snap.InitStatus, snap.TeardownStatus, snap.Iterations)
	return status.Err()
}

func (a *mainApp) PrepareRun() (MainApp, error) {
	desc := config.NewIMUCapDesc()
	err := desc.Parse(a.cmd)
	if err != nil {
		log.Errorln(err)
		return nil, err
	}
	desc.PostParse()
	a.opt = &desc.Opt
	a.name = config.DefaultAppName

	return a, nil
}

type MainApp interface {
	Run() error
	PrepareRun() (MainApp, error)
	GetOpt() *config.IMUCapOpt
	SetOpt(*config.IMUCapOpt)
	ProbeSensor() error
}

func NewMainApp(cmd *cobra.Command, args []string) MainApp {
	return &mainApp{
		cmd:  cmd,
		args: args,
	}
}

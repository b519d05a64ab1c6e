// Package driver wires a camera session, its capture handler, the output topics and the
// optional web bridge into one running process.
package driver

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/ensenso/bus"
	"go.viam.com/ensenso/components/camera/ensenso"
	// Register the built-in device models.
	_ "go.viam.com/ensenso/components/camera/ensenso/fake"
	_ "go.viam.com/ensenso/components/camera/ensenso/replay"
	"go.viam.com/ensenso/config"
	"go.viam.com/ensenso/logging"
	"go.viam.com/ensenso/utils"
	"go.viam.com/ensenso/web"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile    string `flag:"0,usage=driver config file; it must name the camera model"`
	Debug         bool   `flag:"debug,usage=log at debug level"`
	ListModels    bool   `flag:"list-models,usage=print the registered device models and exit"`
	TraceCaptures int    `flag:"trace-captures,usage=log details of the next N captures at any log level"`
}

// RunDriver is the entry point of the ensenso-driver command. It streams until ctx is done and
// always stops and closes the camera before returning.
func RunDriver(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	if argsParsed.ListModels {
		logger.Infow("registered device models", "models", ensenso.RegisteredModels())
		return nil
	}

	cfg := config.Default(logger)
	if argsParsed.ConfigFile != "" {
		var err error
		cfg, err = config.Read(argsParsed.ConfigFile, logger)
		if err != nil {
			return err
		}
	}

	if cfg.LogFile.Path != "" {
		appender := logging.NewFileAppender(cfg.LogFile.Path, cfg.LogFile.MaxSizeMB(), cfg.LogFile.MaxBackups, cfg.LogFile.Compress)
		logger.AddAppender(appender)
		defer goutils.UncheckedErrorFunc(appender.Close)
	}

	d, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// Close logs its own failures; they never change the exit status. ctx is done by the time it
	// runs.
	defer goutils.UncheckedErrorFunc(func() error { return d.Close(context.Background()) })
	if argsParsed.TraceCaptures > 0 {
		d.handler.TraceCaptures(argsParsed.TraceCaptures)
	}

	var configs <-chan *config.Config
	if argsParsed.ConfigFile != "" {
		watcher, err := config.NewWatcher(argsParsed.ConfigFile, logger.Sublogger("config"))
		if err != nil {
			logger.Warnw("config changes will not be applied", "error", err)
		} else {
			defer goutils.UncheckedErrorFunc(watcher.Close)
			configs = watcher.Configs()
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case newCfg := <-configs:
			d.Reconfigure(cfg, newCfg)
			cfg = newCfg
		}
	}
}

// Reconfigure applies the parts of newCfg that can change while streaming. Only log levels are
// applied; other changes are reported and take effect on restart.
func (d *Driver) Reconfigure(oldCfg, newCfg *config.Config) {
	if err := logging.UpdateLoggerRegistryConfig(newCfg.LogConfig, d.logger); err != nil {
		d.logger.Warnw("error applying log config", "error", err)
	}
	var restart []string
	if !reflect.DeepEqual(oldCfg.Camera, newCfg.Camera) {
		restart = append(restart, "camera")
	}
	if oldCfg.Publishing != newCfg.Publishing {
		restart = append(restart, "publishing")
	}
	if !reflect.DeepEqual(oldCfg.Web, newCfg.Web) {
		restart = append(restart, "web")
	}
	if oldCfg.LogFile != newCfg.LogFile {
		restart = append(restart, "log_file")
	}
	if len(restart) > 0 {
		d.logger.Warnw("config changes need a restart to take effect", "sections", restart)
		return
	}
	d.logger.Info("config reloaded")
}

// Driver is a running camera pipeline.
type Driver struct {
	session *ensenso.Session
	bus     *bus.Bus
	handler *ensenso.Handler
	server  *web.Server
	logger  logging.Logger
}

// New opens, configures and starts the camera described by cfg. On error everything already
// acquired is released.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Driver, error) {
	if err := logging.UpdateLoggerRegistryConfig(cfg.LogConfig, logger); err != nil {
		logger.Warnw("error applying log config", "error", err)
	}

	captureCfg, diags, err := ensenso.NewCaptureConfig(cfg.Camera)
	if err != nil {
		return nil, err
	}
	for _, diag := range diags {
		logger.Warnw(diag.Message, "key", diag.Key)
	}

	device, err := ensenso.NewDevice(ctx, captureCfg.Model, captureCfg.DeviceAttributes, logger)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		session: ensenso.NewSession(device, logger),
		bus:     bus.New(logger.Sublogger("bus")),
		logger:  logger,
	}
	guard := utils.NewGuard(func() {
		goutils.UncheckedError(d.Close(context.Background()))
	})
	defer guard.OnFail()

	if err := d.session.Open(ctx, captureCfg.SerialNumber); err != nil {
		return nil, err
	}
	if err := d.session.EstablishControlChannel(ctx); err != nil {
		return nil, err
	}
	if err := d.session.Configure(ctx, captureCfg.CaptureOptions()); err != nil {
		return nil, err
	}

	outputs, err := ensenso.AdvertiseOutputs(d.bus, cfg.Publishing.CompressedFormat)
	if err != nil {
		return nil, err
	}
	d.handler = ensenso.NewHandler(d.session, outputs, captureCfg.FrameID, nil, logger)

	if cfg.Web.Enabled {
		d.server = web.NewServer(d.bus, d.Health, web.Options{
			BindAddress:        cfg.Web.BindAddress,
			CORSAllowedOrigins: cfg.Web.CORSAllowedOrigins,
			QueueSize:          cfg.Publishing.QueueSize,
		}, logger.Sublogger("web"))
		if err := d.server.Start(ctx); err != nil {
			return nil, err
		}
	}

	if err := d.session.Start(ctx, d.handler.OnCapture); err != nil {
		return nil, err
	}
	logger.Infow("streaming",
		"model", captureCfg.Model,
		"serial_no", captureCfg.SerialNumber,
		"camera_frame_id", captureCfg.FrameID,
		"session", d.session.ID())

	guard.Success()
	return d, nil
}

// Session returns the camera session.
func (d *Driver) Session() *ensenso.Session {
	return d.session
}

// Bus returns the bus the outputs are published on.
func (d *Driver) Bus() *bus.Bus {
	return d.bus
}

// WebAddress returns the address of the web bridge, or "" when it is disabled.
func (d *Driver) WebAddress() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}

// Health reports whether the camera is streaming.
func (d *Driver) Health() web.Health {
	state := d.session.State()
	processing := d.handler.ProcessingStats()
	return web.Health{
		Healthy:          state == ensenso.StateStreaming,
		State:            state.String(),
		SessionID:        d.session.ID(),
		Serial:           d.session.Serial(),
		ProcessingMeanMs: processing.MeanMs,
		ProcessingP95Ms:  processing.P95Ms,
	}
}

// Close stops the capture, closes the camera and then stops publishing. Every step runs even
// when an earlier one fails.
func (d *Driver) Close(ctx context.Context) error {
	var err error
	if stopErr := d.session.Stop(ctx); stopErr != nil {
		err = multierr.Combine(err, errors.Wrap(stopErr, "error stopping capture"))
	}
	if closeErr := d.session.Close(ctx); closeErr != nil {
		err = multierr.Combine(err, errors.Wrap(closeErr, "error closing camera"))
	}
	if d.server != nil {
		err = multierr.Combine(err, d.server.Close(ctx))
	}
	err = multierr.Combine(err, d.bus.Close())
	if err != nil {
		d.logger.Errorw("error shutting down", "error", err)
	}
	return err
}

package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pjet/internal/bridge"
	"github.com/dcrodman/pjet/internal/core"
	"github.com/dcrodman/pjet/internal/core/debug"
	"github.com/dcrodman/pjet/internal/core/metrics"
	"github.com/dcrodman/pjet/internal/dmi"
	"github.com/dcrodman/pjet/internal/trace"
	"github.com/dcrodman/pjet/internal/transport"
)

// Controller is the main entrypoint for pjet. It's responsible for initializing
// any shared resources (logging, metrics, the trace database), wiring the
// simulated debug module to the bridge, and driving the host loop.
type Controller struct {
	Config *core.Config
	// Logger is built from Config when left nil.
	Logger *logrus.Logger
	// OnListen, if set, is called with the bridge's address once it is listening.
	OnListen func(addr *net.TCPAddr)

	logger      *logrus.Logger
	registry    *prometheus.Registry
	debugServer *debug.Server
	store       *trace.Store
	module      *dmi.Module
	bridge      *bridge.Bridge
}

// Start sets everything up and runs the host loop until ctx is cancelled or
// the bridge reports a fatal error, which is returned.
func (c *Controller) Start(ctx context.Context) error {
	defer c.Shutdown()
	if err := c.init(); err != nil {
		return err
	}

	return c.run(ctx)
}

func (c *Controller) init() error {
	var err error
	c.logger = c.Logger
	if c.logger == nil {
		// Set up the logger, which will be used by all components.
		if c.logger, err = core.NewLogger(c.Config); err != nil {
			return fmt.Errorf("error initializing logger: %w", err)
		}
	}
	if c.Config.Simulation.TickInterval <= 0 {
		return fmt.Errorf("invalid tick interval %v", c.Config.Simulation.TickInterval)
	}

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(collectors.NewGoCollector())
	bridgeMetrics := metrics.New(c.registry)

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.Enabled {
		c.debugServer, err = debug.StartUtilities(c.logger, c.Config.Debugging.HTTPAddress, c.registry)
		if err != nil {
			return fmt.Errorf("error starting debug server: %w", err)
		}
	}

	var recorder bridge.Recorder
	if c.Config.Trace.Enabled {
		c.store, err = trace.Open(
			c.Config.Trace.Engine,
			c.Config.Trace.Filename,
			c.Config.Trace.DSN,
			c.Config.Debugging.DatabaseLoggingEnabled,
		)
		if err != nil {
			return err
		}
		recorder = c.store
		c.logger.Infof("recording sessions to %s trace database", c.Config.Trace.Engine)
	}

	listener, err := transport.Listen(c.Config.BridgeAddress())
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %w", c.Config.BridgeAddress(), err)
	}
	listener.WriteTimeout = c.Config.Bridge.WriteTimeout
	c.logger.Infof("listening for remote debug connections on port %d", listener.Port())

	c.module = dmi.New()
	c.bridge = bridge.New(bridge.Config{
		Listener:            listener,
		Module:              c.module,
		Logger:              c.logger.WithField("component", "bridge"),
		Recorder:            recorder,
		Metrics:             bridgeMetrics,
		UnknownOpcodeWindow: c.Config.Bridge.UnknownOpcodeWindow,
		PacketLogging:       c.Config.Debugging.PacketLoggingEnabled,
	})

	if c.OnListen != nil {
		c.OnListen(listener.Addr())
	}
	return nil
}

// run is the host loop. Each tick of the simulation gives the bridge one
// chance to make progress.
func (c *Controller) run(ctx context.Context) error {
	ticker := time.NewTicker(c.Config.Simulation.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("shutting down")
			return nil
		case <-ticker.C:
		}

		if err := c.bridge.Tick(); err != nil {
			var fatal *bridge.FatalError
			if errors.As(err, &fatal) {
				c.logger.Errorf("remote debug bridge stopped: %v", fatal)
			}
			return err
		}
	}
}

// Shutdown releases everything Start acquired. It is safe to call after a
// partially failed Start.
func (c *Controller) Shutdown() {
	if c.bridge != nil {
		if err := c.bridge.Close(); err != nil {
			c.logger.Warnf("error closing bridge: %v", err)
		}
		c.bridge = nil
	}
	if c.module != nil {
		c.logger.Debugf("final debug module state:\n%s", spew.Sdump(c.module.Snapshot()))
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warnf("error closing trace database: %v", err)
		}
		c.store = nil
	}
	if c.debugServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.debugServer.Shutdown(ctx); err != nil {
			c.logger.Warnf("error stopping debug server: %v", err)
		}
		c.debugServer = nil
	}
}

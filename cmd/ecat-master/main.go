// cmd/ecat-master/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/ecat-master/internal/bus"
	"github.com/tamzrod/ecat-master/internal/bus/sim"
	"github.com/tamzrod/ecat-master/internal/clocksync"
	"github.com/tamzrod/ecat-master/internal/command"
	"github.com/tamzrod/ecat-master/internal/config"
	"github.com/tamzrod/ecat-master/internal/cyclic"
	"github.com/tamzrod/ecat-master/internal/gateway"
	gwmodbus "github.com/tamzrod/ecat-master/internal/gateway/modbus"
	"github.com/tamzrod/ecat-master/internal/master"
	"github.com/tamzrod/ecat-master/internal/monitor"
	"github.com/tamzrod/ecat-master/internal/registry"
	"github.com/tamzrod/ecat-master/internal/rt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ecat-master <config.yaml>")
		os.Exit(2)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal("config validation failed", zap.Error(err))
	}
	config.Normalize(cfg)

	if err := run(cfg, log); err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	m := cfg.Master
	cycle := time.Duration(m.CycleTimeUs) * time.Microsecond

	// The cyclic loop runs on the main goroutine; pin it to one OS thread so
	// the scheduler and affinity setup below apply to it.
	runtime.LockOSThread()

	// --------------------
	// Real-time setup (best-effort, never fatal)
	// --------------------

	if m.RT.LockMemory {
		if err := rt.LockMemory(); err != nil {
			log.Warn("memory locking unavailable", zap.Error(err))
		}
	}
	if m.RT.Priority > 0 {
		if err := rt.SetScheduler(m.RT.Priority); err != nil {
			log.Warn("real-time scheduling unavailable",
				zap.Int("priority", m.RT.Priority), zap.Error(err))
		}
	}
	if m.RT.CPU >= 0 {
		if err := rt.PinCPU(m.RT.CPU); err != nil {
			log.Warn("cpu pinning unavailable", zap.Int("cpu", m.RT.CPU), zap.Error(err))
		}
	}

	// --------------------
	// Transport selection
	// --------------------

	var b bus.Bus
	ifname := m.Interface
	if m.Simulate {
		b = sim.New(m.SimDevices, cycle)
		if ifname == "" {
			ifname = "sim0"
		}
		log.Info("using simulated segment", zap.Int("devices", m.SimDevices))
	} else {
		return fmt.Errorf("no native transport driver for %q in this build; set master.simulate", m.Interface)
	}
	b = bus.Serialize(b)
	defer b.Close()

	// --------------------
	// Startup lifecycle (fatal on failure)
	// --------------------

	reg := registry.New()
	ctrl := master.New(master.Config{
		Interface:    ifname,
		CycleTime:    cycle,
		StateTimeout: time.Duration(m.StateTimeoutMs) * time.Millisecond,
	}, b, reg, log)
	if _, err := ctrl.BringToOperational(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Runtime loops
	// --------------------

	var targets <-chan int32
	if m.Command != nil {
		srv := command.New(command.Config{Listen: m.Command.Listen}, reg, log)
		targets = srv.Targets()
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error("command server failed", zap.Error(err))
			}
		}()
	}

	if m.Gateway != nil {
		cli, err := gwmodbus.NewEndpointClient(gwmodbus.Config{
			Endpoint: m.Gateway.Endpoint,
			Timeout:  time.Duration(m.Gateway.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			log.Warn("status gateway unavailable", zap.Error(err))
		} else {
			defer cli.Close()
			gw := gateway.New(gateway.Config{
				UnitID:   m.Gateway.UnitID,
				BaseSlot: m.Gateway.BaseSlot,
			}, cli, reg, log)
			go gw.Run(ctx)
		}
	}

	mon := monitor.New(monitor.Config{
		Interval:     time.Duration(m.Monitor.IntervalUs) * time.Microsecond,
		CheckTimeout: time.Duration(m.Monitor.CheckTimeoutMs) * time.Millisecond,
	}, b, reg, log)
	go mon.Run(ctx)

	loop := cyclic.New(cyclic.Config{CycleTime: cycle}, b, reg, clocksync.New(),
		cyclic.NewRamp(m.Ramp.Increment), rt.NewClock(), targets, log)

	// Blocks until a signal cancels the context.
	err := loop.Run(ctx)
	log.Info("shutdown complete")
	return err
}

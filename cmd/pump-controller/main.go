package main

import (
	"context"
	"database/sql"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pump-controller/db"
	"github.com/thatsimonsguy/pump-controller/internal/api"
	"github.com/thatsimonsguy/pump-controller/internal/config"
	"github.com/thatsimonsguy/pump-controller/internal/datadog"
	"github.com/thatsimonsguy/pump-controller/internal/device"
	"github.com/thatsimonsguy/pump-controller/internal/dispatch"
	"github.com/thatsimonsguy/pump-controller/internal/gpio"
	"github.com/thatsimonsguy/pump-controller/internal/influx"
	"github.com/thatsimonsguy/pump-controller/internal/logging"
	"github.com/thatsimonsguy/pump-controller/internal/metrics"
	"github.com/thatsimonsguy/pump-controller/internal/mqtt"
	"github.com/thatsimonsguy/pump-controller/internal/notifications"
	"github.com/thatsimonsguy/pump-controller/internal/operator"
	"github.com/thatsimonsguy/pump-controller/internal/pump"
	"github.com/thatsimonsguy/pump-controller/internal/simulate"
	"github.com/thatsimonsguy/pump-controller/internal/store"
	"github.com/thatsimonsguy/pump-controller/internal/temperature"
	"github.com/thatsimonsguy/pump-controller/internal/tick"
	"github.com/thatsimonsguy/pump-controller/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db", cfg.DBPath).
		Bool("simulate", cfg.Simulate).
		Msg("Starting pump controller")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	shutdown.Register("close database", func() { dbConn.Close() })

	st := store.New(cfg.SettingsFile)

	ntfy := notifications.New(notifications.Options{
		Server:          cfg.Ntfy.Server,
		Topic:           cfg.Ntfy.Topic,
		Timeout:         time.Duration(cfg.Ntfy.TimeoutSeconds) * time.Second,
		MaxRetries:      cfg.Ntfy.MaxRetries,
		BreakerFailures: cfg.Ntfy.BreakerFailures,
		BreakerOpen:     time.Duration(cfg.Ntfy.BreakerOpenSeconds) * time.Second,
		Logger:          logging.Component("ntfy"),
	})
	alerts := notifications.NewAlerts(ntfy, logging.Component("alerts"))

	relay := openRelay(cfg)
	relaySink := device.NewPump(relay, func(err error) {
		shutdown.ShutdownWithError(err, "Pump relay failure")
	}, logging.Component("relay"))
	shutdown.Register("release pump relay", func() {
		relaySink.ForceOff()
		relay.Close()
	})

	// alerts get their own queue so a slow telemetry backend can never crowd
	// out a fault notification
	queue := dispatch.New("telemetry", 512, logging.Component("dispatch"))
	alertQueue := dispatch.New("alerts", 32, logging.Component("dispatch"), dispatch.WithWait(250*time.Millisecond))
	recorder := db.NewRecorder(dbConn, cfg.FlushEvery, logging.Component("recorder"))
	prom := metrics.New()

	sinks := pump.Sinks{relaySink, prom, alertQueue.Sink(alerts), queue.Sink(recorder)}
	observers := []tick.RunnerOption{
		tick.WithObserver(prom),
		tick.WithObserver(queue.Observer(recorder)),
	}

	if cfg.Datadog.Enabled {
		dd := datadog.New(cfg.Datadog.AgentAddr, cfg.Datadog.Namespace, cfg.Datadog.Tags, logging.Component("datadog"))
		sinks = append(sinks, dd)
		observers = append(observers, tick.WithObserver(dd))
	}

	if cfg.Influx.URL != "" {
		hostname, _ := os.Hostname()
		iw := influx.New(influx.Options{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
			Host:   hostname,
		}, logging.Component("influx"))
		shutdown.Register("close influx", iw.Close)
		sinks = append(sinks, queue.Sink(iw))
		observers = append(observers, tick.WithObserver(queue.Observer(iw)))
	}

	// the MQTT command handler needs the operator service, which needs the
	// runner, which needs the controller and its sinks
	var svcRef atomic.Pointer[operator.Service]
	var bridge *mqtt.Bridge
	if cfg.MQTT.Broker != "" {
		mqttLog := logging.Component("mqtt")
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			MaxRetries:  cfg.MQTT.MaxRetries,
			OnCommand: func(payload []byte) {
				if svc := svcRef.Load(); svc != nil {
					mqtt.CommandHandlerFor(svc, mqttLog)(payload)
				} else {
					mqttLog.Warn().Msg("MQTT command received before startup finished, ignored")
				}
			},
			Logger: mqttLog,
		})
		if err != nil {
			log.Error().Err(err).Msg("MQTT unavailable, continuing without it")
		} else {
			shutdown.Register("close mqtt", func() { pub.Close() })
			bridge = mqtt.NewBridge(pub, mqttLog)
			sinks = append(sinks, queue.Sink(bridge))
		}
	}

	ctrl := pump.New(cfg.Pump, pump.WithSink(sinks), pump.WithLogger(logging.Component("pump")))
	restoreSettings(st, ctrl)

	tempSource, pulseSource := openSensors(ctx, cfg, ctrl, alerts)
	driver := tick.NewDriver(ctrl, tempSource, pulseSource)
	runner := tick.NewRunner(driver, time.Duration(cfg.TickIntervalMs)*time.Millisecond,
		append(observers, tick.WithRunnerLogger(logging.Component("tick")))...)

	svc := operator.New(runner,
		operator.WithSettingsSaver(st),
		operator.OnFaultCleared(alerts.FaultCleared),
		operator.WithLogger(logging.Component("operator")),
	)
	svcRef.Store(svc)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		queue.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		alertQueue.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	if bridge != nil {
		go bridge.RunStatus(ctx, time.Duration(cfg.MQTT.StatusIntervalSeconds)*time.Second, svc.Status)
	}
	go pruneEvents(ctx, dbConn, cfg.RetentionDays)

	server := api.NewServer(svc, dbConn, prom.Handler(), logging.Component("api"))
	go func() {
		if err := server.Start(ctx, cfg.APIPort); err != nil {
			shutdown.ShutdownWithError(err, "API server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	wg.Wait()

	shutdown.Register("flush daily stats", func() {
		if err := recorder.Flush(); err != nil {
			log.Error().Err(err).Msg("Failed to flush daily stats")
		}
	})
	shutdown.Shutdown()
}

func openRelay(cfg config.Config) gpio.Relay {
	if cfg.Simulate {
		log.Warn().Msg("SIMULATION MODE: pump relay is not connected to hardware")
		return &gpio.FakeRelay{}
	}
	relay, err := gpio.NewRealRelay(cfg.GPIO.Chip, *cfg.GPIO.PumpRelay, cfg.GPIO.RelayActiveHigh, logging.Component("gpio"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open pump relay")
	}
	return relay
}

func openSensors(ctx context.Context, cfg config.Config, ctrl *pump.Controller, alerts *notifications.Alerts) (tick.TemperatureSource, tick.PulseSource) {
	if cfg.Simulate {
		seed := cfg.Simulation.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		temp := simulate.NewTemperature(cfg.Simulation.Temperature, cfg.Simulation.TemperatureStep, cfg.Simulation.Jitter, rand.New(rand.NewSource(seed)))
		// the flow source is polled on the tick goroutine, so reading the
		// controller here does not race
		flow := simulate.NewFlow(cfg.Simulation.PulsesPerSecond, ctrl.IsRunning)
		return temp, flow
	}

	tempSvc := temperature.NewService(temperature.Options{
		SensorPath:   cfg.Temperature.SensorPath,
		MinC:         cfg.Temperature.MinC,
		MaxC:         cfg.Temperature.MaxC,
		MaxDelta:     cfg.Temperature.MaxDeltaC,
		MaxAnomalies: cfg.Temperature.MaxAnomalies,
		Retries:      cfg.Temperature.Retries,
		RetryWait:    500 * time.Millisecond,
	}, alerts, logging.Component("temperature"))
	go tempSvc.Run(ctx, time.Duration(cfg.Temperature.PollSeconds)*time.Second)

	meter, err := gpio.NewRealFlowMeter(cfg.GPIO.Chip, *cfg.GPIO.FlowMeter, logging.Component("gpio"))
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open flow meter")
	}
	shutdown.Register("close flow meter", func() { meter.Close() })
	return tempSvc, meter
}

func restoreSettings(st *store.Store, ctrl *pump.Controller) {
	settings, ok, err := st.Load()
	if err != nil {
		log.Warn().Err(err).Str("file", st.Path()).Msg("Failed to load saved settings, starting with config defaults")
		return
	}
	if !ok {
		log.Info().Msg("No saved settings, starting with config defaults")
		return
	}
	if err := settings.Apply(ctrl); err != nil {
		log.Warn().Err(err).Msg("Saved settings rejected, starting with config defaults")
		return
	}
	log.Info().
		Str("mode", settings.Mode).
		Bool("enabled", settings.Enabled).
		Msg("Restored saved settings")
}

func pruneEvents(ctx context.Context, dbConn *sql.DB, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		if n, err := db.PruneEvents(dbConn, cutoff); err != nil {
			log.Warn().Err(err).Msg("Failed to prune old events")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Msg("Pruned old pump events")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/pump-controller/db"
	"github.com/thatsimonsguy/pump-controller/internal/model"
	"github.com/thatsimonsguy/pump-controller/internal/pump"
	"github.com/thatsimonsguy/pump-controller/internal/simulate"
	"github.com/thatsimonsguy/pump-controller/internal/store"
	"github.com/thatsimonsguy/pump-controller/internal/tick"
	"github.com/thatsimonsguy/pump-controller/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, settingsPath, command, mode string
	var limit, days, seconds, relayPin, flowPin int
	var temp, step, pulses float64
	var relayActiveHigh bool
	flag.StringVar(&dbPath, "db", "data/pump.db", "Path to the SQLite database file")
	flag.StringVar(&settingsPath, "settings", "data/settings.json", "Path to the saved settings file")
	flag.StringVar(&command, "cmd", "", "Command to run: simulate, events, stats, set-mode, install")
	flag.StringVar(&mode, "mode", "", "Pump mode for set-mode: auto, manual_on, manual_off, disabled")
	flag.IntVar(&limit, "limit", 20, "Number of events to list")
	flag.IntVar(&days, "days", 7, "Number of days of stats to print")
	flag.IntVar(&seconds, "seconds", 3600, "Simulated seconds to run")
	flag.Float64Var(&temp, "temp", 2.0, "Starting water temperature (°C) for simulate")
	flag.Float64Var(&step, "step", -0.001, "Temperature change per simulated second")
	flag.Float64Var(&pulses, "pulses", 10, "Flow meter pulses per second while the pump runs")
	flag.IntVar(&relayPin, "relay-pin", 17, "Relay GPIO for install")
	flag.IntVar(&flowPin, "flow-pin", 27, "Flow meter GPIO for install")
	flag.BoolVar(&relayActiveHigh, "relay-active-high", true, "Relay is energized by a high level")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of pump-debug:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	var err error
	switch command {
	case "simulate":
		err = runSimulation(seconds, temp, step, pulses)
	case "events":
		err = db.ListEventsCLI(os.Stdout, dbPath, limit)
	case "stats":
		err = db.DailyStatsCLI(os.Stdout, dbPath, days, time.Now())
	case "set-mode":
		err = setMode(settingsPath, mode)
	case "install":
		err = startup.InstallServices(startup.Install{
			BootScriptPath:  "/usr/local/bin/pump-gpio-init.sh",
			BootServicePath: "/etc/systemd/system/pump-gpio-init.service",
			MainServicePath: "/etc/systemd/system/pump-controller.service",
			User:            "pi",
			WorkDir:         "/home/pi/pump-controller",
			Binary:          "/usr/local/bin/pump-controller",
			ConfigFile:      "/etc/pump-controller/config.json",
		}, relayPin, relayActiveHigh, flowPin)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

// runSimulation drives a controller with default settings through a
// temperature ramp and prints every event and the final status.
func runSimulation(seconds int, start, step, pulsesPerSecond float64) error {
	ctrl := pump.New(pump.DefaultConfig())
	flow := simulate.NewFlow(pulsesPerSecond, ctrl.IsRunning)
	driver := tick.NewDriver(ctrl, simulate.NewTemperature(start, step, 0, nil), flow)

	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	printEvent := func(ev pump.Event) {
		rec := model.NewEventRecord(ev, base.Add(time.Duration(ev.State.Seconds)*time.Second))
		line := fmt.Sprintf("t=%6ds %-13s active=%-5v temp=%6.2fC", ev.State.Seconds, rec.Kind, rec.Active, rec.Temperature)
		if rec.Fault != "" {
			line += " fault=" + rec.Fault
		}
		fmt.Println(line)
	}
	printer := pump.SinkFuncs{
		OnStateChange: func(state pump.State, wasActive bool) {
			printEvent(pump.Event{Kind: pump.EventStateChanged, State: state, WasActive: wasActive})
		},
		OnFault: func(kind pump.FaultKind, state pump.State) {
			printEvent(pump.Event{Kind: pump.EventFaultRaised, State: state, Fault: kind})
		},
	}

	for i := 0; i < seconds; i++ {
		pump.Deliver(printer, driver.Step())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(model.NewPumpStatus(tick.Capture(ctrl)))
}

// setMode edits the saved settings so the next controller start comes up in
// mode. The running controller is not affected.
func setMode(path, mode string) error {
	m, err := pump.ParseMode(mode)
	if err != nil {
		return err
	}

	st := store.New(path)
	settings, ok, err := st.Load()
	if err != nil {
		return err
	}
	if !ok {
		settings = model.Settings{Enabled: true, Pump: pump.DefaultConfig()}
	}
	settings.Mode = m.String()
	return st.Save(settings)
}

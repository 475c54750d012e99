// Package startup installs the boot-time relay script and systemd units so
// the pump relay is driven to its off level before the controller starts.
package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Install struct {
	BootScriptPath  string // e.g. /usr/local/bin/pump-gpio-init.sh
	BootServicePath string // e.g. /etc/systemd/system/pump-gpio-init.service
	MainServicePath string // e.g. /etc/systemd/system/pump-controller.service

	User       string
	WorkDir    string
	Binary     string
	ConfigFile string
}

// BootScript drives the relay pin to its inactive level and leaves the flow
// meter pin as a pulled-up input.
func BootScript(relayPin int, relayActiveHigh bool, flowPin int) string {
	drive := "dl"
	if !relayActiveHigh {
		drive = "dh"
	}

	lines := []string{
		"#!/bin/bash",
		"",
		"# Pump controller GPIO configuration at boot",
		"",
		"# pump relay (off)",
		fmt.Sprintf("pinctrl set %d op pn %s", relayPin, drive),
		"",
		"# flow meter",
		fmt.Sprintf("pinctrl set %d ip pu", flowPin),
	}
	return strings.Join(lines, "\n") + "\n"
}

func WriteStartupScript(path string, relayPin int, relayActiveHigh bool, flowPin int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(BootScript(relayPin, relayActiveHigh, flowPin)), 0755)
}

func BootServiceUnit(scriptPath string) string {
	return fmt.Sprintf(`[Unit]
Description=Configure pump GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, scriptPath)
}

func MainServiceUnit(in Install) string {
	bootUnit := filepath.Base(in.BootServicePath)
	return fmt.Sprintf(`[Unit]
Description=Pump freeze protection controller
After=%s
Requires=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s -config-file %s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, bootUnit, bootUnit, in.User, in.WorkDir, in.Binary, in.ConfigFile)
}

// InstallServices writes the boot script and both unit files.
func InstallServices(in Install, relayPin int, relayActiveHigh bool, flowPin int) error {
	if err := WriteStartupScript(in.BootScriptPath, relayPin, relayActiveHigh, flowPin); err != nil {
		return fmt.Errorf("write boot script: %w", err)
	}
	if err := os.WriteFile(in.BootServicePath, []byte(BootServiceUnit(in.BootScriptPath)), 0644); err != nil {
		return fmt.Errorf("write boot unit: %w", err)
	}
	if err := os.WriteFile(in.MainServicePath, []byte(MainServiceUnit(in)), 0644); err != nil {
		return fmt.Errorf("write main unit: %w", err)
	}
	return nil
}

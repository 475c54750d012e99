package startup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootScript(t *testing.T) {
	tests := []struct {
		name       string
		activeHigh bool
		want       string
	}{
		{"active high relay drives low", true, "pinctrl set 17 op pn dl"},
		{"active low relay drives high", false, "pinctrl set 17 op pn dh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := BootScript(17, tt.activeHigh, 27)
			assert.Contains(t, script, tt.want)
			assert.Contains(t, script, "pinctrl set 27 ip pu")
			assert.True(t, len(script) > 0 && script[:2] == "#!")
		})
	}
}

func TestInstallServices(t *testing.T) {
	dir := t.TempDir()
	in := Install{
		BootScriptPath:  filepath.Join(dir, "bin", "pump-gpio-init.sh"),
		BootServicePath: filepath.Join(dir, "pump-gpio-init.service"),
		MainServicePath: filepath.Join(dir, "pump-controller.service"),
		User:            "pi",
		WorkDir:         "/home/pi/pump",
		Binary:          "/usr/local/bin/pump-controller",
		ConfigFile:      "/etc/pump/config.json",
	}

	require.NoError(t, InstallServices(in, 17, true, 27))

	info, err := os.Stat(in.BootScriptPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100, "boot script must be executable")

	boot, err := os.ReadFile(in.BootServicePath)
	require.NoError(t, err)
	assert.Contains(t, string(boot), "ExecStart="+in.BootScriptPath)

	main, err := os.ReadFile(in.MainServicePath)
	require.NoError(t, err)
	assert.Contains(t, string(main), "Requires=pump-gpio-init.service")
	assert.Contains(t, string(main), "ExecStart=/usr/local/bin/pump-controller -config-file /etc/pump/config.json")
	assert.Contains(t, string(main), "User=pi")
}

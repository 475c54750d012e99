package shutdown

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withExit(t *testing.T) *int {
	t.Helper()
	Reset()
	code := -1
	orig := ExitFunc
	ExitFunc = func(c int) { code = c }
	t.Cleanup(func() {
		ExitFunc = orig
		Reset()
	})
	return &code
}

func TestShutdown_RunsStepsInReverse(t *testing.T) {
	code := withExit(t)

	var order []string
	Register("relay off", func() { order = append(order, "relay") })
	Register("close db", func() { order = append(order, "db") })

	Shutdown()

	assert.Equal(t, []string{"db", "relay"}, order)
	assert.Equal(t, 0, *code)
}

func TestShutdownWithError_ExitsNonZero(t *testing.T) {
	code := withExit(t)

	ran := 0
	Register("relay off", func() { ran++ })

	ShutdownWithError(errors.New("gpio gone"), "Relay failure")
	assert.Equal(t, 1, *code)
	assert.Equal(t, 1, ran)
}

func TestRun_OnlyOnce(t *testing.T) {
	withExit(t)

	ran := 0
	Register("relay off", func() { ran++ })
	Run()
	Run()
	Shutdown()
	assert.Equal(t, 1, ran)
}

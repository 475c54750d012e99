package shutdown

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// ExitFunc is swapped out in tests.
var ExitFunc = os.Exit

var (
	mu    sync.Mutex
	hooks []hook
	done  bool
)

type hook struct {
	name string
	fn   func()
}

// Register adds a cleanup step. Steps run in reverse registration order, so
// register the relay first to have it released last.
func Register(name string, fn func()) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook{name: name, fn: fn})
}

// Run executes the registered steps once. Later calls are no-ops.
func Run() {
	mu.Lock()
	if done {
		mu.Unlock()
		return
	}
	done = true
	pending := hooks
	mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		h := pending[i]
		log.Info().Str("step", h.name).Msg("Shutdown step")
		h.fn()
	}
}

func Shutdown() {
	Run()
	log.Info().Msg("Pump controller stopped")
	ExitFunc(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Run()
	ExitFunc(1)
}

// Reset clears registered steps. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	hooks = nil
	done = false
}

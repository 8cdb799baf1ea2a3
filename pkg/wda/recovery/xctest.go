// Package recovery provides a wda.Recoverer that relaunches WebDriverAgent
// through an external launcher such as tidevice.
package recovery

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/wdaclient/pkg/wda"
)

var _ wda.Recoverer = (*XCTestRecoverer)(nil)

// outputTail is the number of launcher lines kept for the failure log.
const outputTail = 50

// waitDelay bounds how long Wait blocks on output held open by children of
// a killed launcher.
const waitDelay = 2 * time.Second

// XCTestRecoverer relaunches the agent as an XCTest run. Calls are
// serialised; a launcher left running by a previous call is terminated
// before a new one starts.
type XCTestRecoverer struct {
	config Config

	mu      sync.Mutex
	current *launch
}

// launch is one launcher process and its output drain.
type launch struct {
	cmd    *exec.Cmd
	done   chan struct{}
	result chan bool
	once   sync.Once

	tailMu sync.Mutex
	tail   []string
}

// New validates config and returns a recoverer. Nothing is started until
// Recover is called.
func New(config Config) (*XCTestRecoverer, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &XCTestRecoverer{config: config}, nil
}

// NewFromMap decodes config with DecodeConfig and calls New.
func NewFromMap(m map[string]any) (*XCTestRecoverer, error) {
	config, err := DecodeConfig(m)
	if err != nil {
		return nil, err
	}
	return New(config)
}

// Recover starts the launcher and waits for ReadyMarker. It returns false if
// the launcher exits first, the marker is not seen within the drain window,
// or no verdict arrives within the launch timeout. On false the launcher is
// killed. On true it keeps running and its output keeps being drained.
func (r *XCTestRecoverer) Recover(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := log.Ctx(ctx).With().Str("udid", r.config.UDID).Logger()
	if r.current != nil {
		r.current.terminate()
		r.current = nil
	}

	logger.Info().Str("command", r.config.Command).Msg("agent is starting")
	l, err := r.start(logger)
	if err != nil {
		logger.Error().Err(ErrLaunchFailed.Err(err)).Msg("unable to start launcher")
		return false
	}

	ok := false
	select {
	case ok = <-l.result:
	case <-time.After(r.config.LaunchTimeout):
		logger.Warn().Dur("timeout", r.config.LaunchTimeout).Msg("agent launch timed out")
	case <-ctx.Done():
		logger.Warn().Err(ctx.Err()).Msg("agent launch aborted")
	}
	if !ok {
		l.terminate()
		logger.Warn().Strs("output", l.lines()).Msg("agent did not start")
		return false
	}
	logger.Info().Msg("agent started")
	r.current = l
	return true
}

// Running reports whether a launcher started by Recover is still alive.
func (r *XCTestRecoverer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return false
	}
	select {
	case <-r.current.done:
		return false
	default:
		return true
	}
}

// Close terminates the launcher, if any.
func (r *XCTestRecoverer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.terminate()
		r.current = nil
	}
	return nil
}

func (r *XCTestRecoverer) start(logger zerolog.Logger) (*launch, error) {
	pr, pw := io.Pipe()

	cmd := exec.Command(r.config.Command, r.config.args()...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = waitDelay
	env := os.Environ()
	for k, v := range r.config.Env {
		env = appendOrReplaceEnv(env, k, v)
	}
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, err
	}

	l := &launch{
		cmd:    cmd,
		done:   make(chan struct{}),
		result: make(chan bool, 1),
	}
	go func() {
		err := cmd.Wait()
		pw.CloseWithError(io.EOF)
		logger.Debug().Err(err).Msg("launcher exited")
		close(l.done)
	}()

	window := time.AfterFunc(r.config.DrainWindow, func() {
		l.report(false)
	})
	go l.drain(pr, window, logger)
	return l, nil
}

// drain reads the launcher output until it closes. The verdict is reported
// at most once; later output is discarded.
func (l *launch) drain(out io.Reader, window *time.Timer, logger zerolog.Logger) {
	defer window.Stop()
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		l.remember(line)
		logger.Trace().Str("line", line).Msg("launcher output")
		if strings.Contains(line, ReadyMarker) {
			window.Stop()
			l.report(true)
		}
	}
	l.report(false)
	io.Copy(io.Discard, out)
}

func (l *launch) report(ok bool) {
	l.once.Do(func() {
		l.result <- ok
	})
}

func (l *launch) remember(line string) {
	l.tailMu.Lock()
	defer l.tailMu.Unlock()
	l.tail = append(l.tail, line)
	if len(l.tail) > outputTail {
		l.tail = l.tail[len(l.tail)-outputTail:]
	}
}

func (l *launch) lines() []string {
	l.tailMu.Lock()
	defer l.tailMu.Unlock()
	return append([]string(nil), l.tail...)
}

// terminate kills the process and waits for it to be reaped.
func (l *launch) terminate() {
	select {
	case <-l.done:
		return
	default:
	}
	if l.cmd.Process != nil {
		l.cmd.Process.Kill()
	}
	<-l.done
}

func appendOrReplaceEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

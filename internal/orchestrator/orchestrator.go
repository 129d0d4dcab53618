// Package orchestrator implements C3: spawning, monitoring, and
// terminating match-server child processes, and driving heartbeat expiry
// via the Session Registry.
package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/The404Studios/zsdu-backend/internal/apierr"
	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/logging"
	"github.com/The404Studios/zsdu-backend/internal/ports"
	"github.com/The404Studios/zsdu-backend/internal/registry"
)

// realProcess adapts *exec.Cmd to registry.ProcessHandle, with a
// non-blocking exit poll the supervisory loop can call every tick.
type realProcess struct {
	cmd     *exec.Cmd
	mu      sync.Mutex
	exited  bool
	exitCode int
}

func (p *realProcess) Pid() int { return p.cmd.Process.Pid }

func (p *realProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// pollExit is invoked once per tick; it is non-blocking.
func (p *realProcess) pollExit() (exitCode int, exited bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return p.exitCode, true
	}
	if p.cmd.ProcessState != nil {
		p.exited = true
		p.exitCode = p.cmd.ProcessState.ExitCode()
		return p.exitCode, true
	}
	return 0, false
}

func (p *realProcess) Wait() (int, bool) { return p.pollExit() }

// Config configures spawn behavior.
type Config struct {
	MatchServer config.MatchServerConfig
	MinReady    int
}

// Orchestrator runs the supervisory loop described in spec §4.3.
type Orchestrator struct {
	reg    *registry.Registry
	pool   *ports.Pool
	cfg    Config
	log    *logging.Logger

	mu       sync.Mutex
	procs    map[string]*realProcess // serverID -> process
	spawnBackoff backoff.BackOff

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Orchestrator. Callers must call Start to begin the
// supervisory loop.
func New(reg *registry.Registry, pool *ports.Pool, cfg Config, log *logging.Logger) *Orchestrator {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = config.OrchestratorTick
	b.MaxElapsedTime = 0 // never stop retrying; the tick loop is the ceiling

	return &Orchestrator{
		reg:          reg,
		pool:         pool,
		cfg:          cfg,
		log:          log.Component("orchestrator"),
		procs:        make(map[string]*realProcess),
		spawnBackoff: b,
	}
}

// Start launches the supervisory loop as a background goroutine, ticking
// at most every config.OrchestratorTick per spec §4.3.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(config.OrchestratorTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.tick(ctx)
			}
		}
	}()
}

// tick runs the three supervisory steps in order (spec §4.3).
func (o *Orchestrator) tick(ctx context.Context) {
	o.heartbeatSweep()
	o.exitSweep()
	o.topUp(ctx)
}

// heartbeatSweep terminates every server whose last heartbeat exceeds the
// locked timeout.
func (o *Orchestrator) heartbeatSweep() {
	deadline := time.Now().Add(-config.HeartbeatTimeout)
	for _, s := range o.reg.TimedOutServers(deadline) {
		o.log.Warn("heartbeat timeout", "server", s.ID)
		o.TerminateServer(s.ID, "heartbeat_timeout")
	}
}

// exitSweep detects process termination and unregisters the corresponding
// entry with reason process_exit_<code>.
func (o *Orchestrator) exitSweep() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.procs))
	for id := range o.procs {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.mu.Lock()
		proc, ok := o.procs[id]
		o.mu.Unlock()
		if !ok {
			continue
		}
		code, exited := proc.Wait()
		if !exited {
			continue
		}
		reason := fmt.Sprintf("process_exit_%d", code)
		o.log.Info("match server exited", "server", id, "reason", reason)
		o.cleanup(id, reason)
	}
}

// topUp spawns new servers while the {Starting,Ready} pool is below the
// configured minimum.
func (o *Orchestrator) topUp(ctx context.Context) {
	for o.reg.StartingOrReadyCount() < o.cfg.MinReady {
		if err := o.spawnServer(ctx); err != nil {
			o.log.Warn("spawn failed, will retry next tick", "error", err)
			time.Sleep(o.spawnBackoff.NextBackOff())
			return
		}
		o.spawnBackoff.Reset()
	}
}

// spawnServer allocates a port, launches the match-server executable, and
// registers a Starting entry (spec §4.3).
func (o *Orchestrator) spawnServer(ctx context.Context) error {
	port, err := o.pool.Allocate()
	if err != nil {
		return err
	}

	id := uuid.NewString()
	args := []string{"--headless"}
	if o.cfg.MatchServer.ProjectPath != "" {
		args = append(args, o.cfg.MatchServer.ProjectPath)
	}

	cmd := exec.CommandContext(ctx, o.cfg.MatchServer.Executable, args...)
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("GAME_PORT=%d", port),
		fmt.Sprintf("BACKEND_HOST=%s", o.cfg.MatchServer.BackendHost),
		fmt.Sprintf("BACKEND_PORT=%d", o.cfg.MatchServer.BackendPort),
	)

	if err := cmd.Start(); err != nil {
		o.pool.Release(port)
		return fmt.Errorf("%w: %v", apierr.ErrServerFailedToStart, err)
	}

	proc := &realProcess{cmd: cmd}
	go func() {
		// Process.Wait (not cmd.Wait) leaves cmd.ProcessState untouched,
		// so pollExit never reads it while it is being written.
		state, err := cmd.Process.Wait()
		proc.mu.Lock()
		defer proc.mu.Unlock()
		proc.exited = true
		proc.exitCode = -1
		if err == nil {
			proc.exitCode = state.ExitCode()
		}
	}()
	o.mu.Lock()
	o.procs[id] = proc
	o.mu.Unlock()

	if _, err := o.reg.RegisterServer(id, port, 0, proc); err != nil {
		proc.Kill()
		o.pool.Release(port)
		o.mu.Lock()
		delete(o.procs, id)
		o.mu.Unlock()
		return err
	}

	o.log.Info("spawned match server", "server", id, "port", port)
	return nil
}

// TerminateServer attempts graceful shutdown, waits up to the locked
// grace period, then force-kills, releasing the port and unregistering.
func (o *Orchestrator) TerminateServer(id, reason string) {
	o.reg.SetServerStatus(id, registry.ServerStopping)

	o.mu.Lock()
	proc, hasProc := o.procs[id]
	o.mu.Unlock()

	if hasProc {
		_ = proc.cmd.Process.Signal(syscall.SIGTERM)
		deadline := time.Now().Add(config.GracefulShutdownWait)
		for time.Now().Before(deadline) {
			if _, exited := proc.Wait(); exited {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if _, exited := proc.Wait(); !exited {
			proc.Kill()
		}
	}

	if m := o.reg.MatchForServer(id); m != nil && m.Status != registry.MatchEnded {
		o.reg.EndMatch(m.ID, reason)
	}

	o.cleanup(id, reason)
}

func (o *Orchestrator) cleanup(id, reason string) {
	s := o.reg.GetServer(id)
	if s == nil {
		return
	}
	if m := o.reg.MatchForServer(id); m != nil && m.Status != registry.MatchEnded {
		o.reg.EndMatch(m.ID, reason)
	}
	o.reg.UnregisterServer(id)
	o.pool.Release(s.Port)

	o.mu.Lock()
	delete(o.procs, id)
	o.mu.Unlock()
}

// GetAvailableServer returns any Ready server with capacity, or nil.
func (o *Orchestrator) GetAvailableServer() *registry.Server {
	return o.reg.AvailableServer()
}

// Shutdown terminates every tracked process and releases every port,
// called once from main on SIGINT/SIGTERM.
func (o *Orchestrator) Shutdown() {
	if o.cancel != nil {
		o.cancel()
		<-o.done
	}
	o.mu.Lock()
	ids := make([]string, 0, len(o.procs))
	for id := range o.procs {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.TerminateServer(id, "shutdown")
	}
}

package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ─── Stubs ───────────────────────────────────────────────────────────────

// memRepo is an in-memory Repository for machine and tick tests.
type memRepo struct {
	mu      sync.Mutex
	state   *StateRecord
	entries []DecisionEntry
}

func (r *memRepo) State(context.Context) (*StateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil, ErrStateNotFound
	}
	cpy := *r.state
	return &cpy, nil
}

func (r *memRepo) SaveState(_ context.Context, record *StateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *record
	if r.state != nil {
		cpy.LastTickAt = r.state.LastTickAt
	}
	r.state = &cpy
	return nil
}

func (r *memRepo) TouchTick(_ context.Context, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		r.state = &StateRecord{State: StateInit, Since: at}
	}
	stamp := at
	r.state.LastTickAt = &stamp
	return nil
}

func (r *memRepo) LogDecision(_ context.Context, decision Decision, reason string, dryRun bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if n := len(r.entries); n > 0 {
		last := &r.entries[n-1]
		if last.Decision == decision && last.Reason == reason && last.DryRun == dryRun {
			last.Count++
			last.LastAt = now
			return nil
		}
	}
	r.entries = append(r.entries, DecisionEntry{
		ID:       GenerateID(),
		Decision: decision,
		Reason:   reason,
		DryRun:   dryRun,
		Count:    1,
		FirstAt:  now,
		LastAt:   now,
	})
	return nil
}

func (r *memRepo) Log(_ context.Context, limit int) ([]DecisionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DecisionEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

func (r *memRepo) lastEntry() *DecisionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	cpy := r.entries[len(r.entries)-1]
	return &cpy
}

// stubNAS is a StorageHost whose reachability the test scripts.
type stubNAS struct {
	mu            sync.Mutex
	online        bool
	shutdownErr   error
	shutdownCalls int
	dropAfterHalt bool // go offline once Shutdown is delivered
}

func (n *stubNAS) Online(context.Context) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *stubNAS) Shutdown(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shutdownCalls++
	if n.shutdownErr != nil {
		return n.shutdownErr
	}
	if n.dropAfterHalt {
		n.online = false
	}
	return nil
}

// stubRelay records power commands.
type stubRelay struct {
	mu       sync.Mutex
	enabled  bool
	on       bool
	setErr   error
	powerErr error
	calls    []string
}

func (r *stubRelay) Enabled() bool { return r.enabled }

func (r *stubRelay) SetPower(_ context.Context, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	r.on = on
	if on {
		r.calls = append(r.calls, "on")
	} else {
		r.calls = append(r.calls, "off")
	}
	return nil
}

func (r *stubRelay) Power(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.powerErr != nil {
		return false, r.powerErr
	}
	return r.on, nil
}

func (r *stubRelay) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestMachine(repo *memRepo, nas *stubNAS, nasRelay, vuRelay *stubRelay, dryRun bool) *Machine {
	m := NewMachine(repo, nas, nasRelay, vuRelay, dryRun, time.Millisecond, 50*time.Millisecond, noopLogger{})
	m.cyclePause = time.Millisecond
	return m
}

// ─── Dry run ─────────────────────────────────────────────────────────────

func TestMachineDryRunTouchesNothing(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: true}
	nasRelay := &stubRelay{enabled: true, on: true}
	vuRelay := &stubRelay{enabled: true, on: true}
	machine := newTestMachine(repo, nas, nasRelay, vuRelay, true)

	res := Result{Decision: DecisionShutdownAll, Reason: "idle (night)"}
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if nas.shutdownCalls != 0 {
		t.Error("dry run delivered a shutdown command")
	}
	if len(nasRelay.callLog()) != 0 || len(vuRelay.callLog()) != 0 {
		t.Error("dry run switched a relay")
	}

	state, err := repo.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.State != StateDryRun {
		t.Errorf("state = %s, want DRY_RUN", state.State)
	}
	if entry := repo.lastEntry(); entry == nil || !entry.DryRun {
		t.Errorf("decision not logged as dry run: %+v", entry)
	}
}

func TestMachineNoActionLeavesStateAlone(t *testing.T) {
	repo := &memRepo{}
	machine := newTestMachine(repo, &stubNAS{}, &stubRelay{}, &stubRelay{}, true)

	if err := machine.Apply(context.Background(), Result{Decision: DecisionNoAction, Reason: "idle"}, nil, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := repo.State(context.Background()); !errors.Is(err, ErrStateNotFound) {
		t.Error("NO_ACTION must not create a state record")
	}
	if entry := repo.lastEntry(); entry == nil || entry.Decision != DecisionNoAction {
		t.Errorf("NO_ACTION must still be logged: %+v", entry)
	}
}

// ─── Starting ────────────────────────────────────────────────────────────

func TestMachineStartRequiredCyclesRelay(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: false}
	nasRelay := &stubRelay{enabled: true, on: true}
	vuRelay := &stubRelay{enabled: true}
	machine := newTestMachine(repo, nas, nasRelay, vuRelay, false)

	res := Result{Decision: DecisionStartRequired, Reason: "recording: Tatort"}
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Power-cycle: off, pause, on. A bare "on" would not boot a NAS whose
	// relay is already closed.
	if got := nasRelay.callLog(); len(got) != 2 || got[0] != "off" || got[1] != "on" {
		t.Errorf("nas relay calls = %v, want [off on]", got)
	}
	if got := vuRelay.callLog(); len(got) != 1 || got[0] != "on" {
		t.Errorf("receiver relay calls = %v, want [on]", got)
	}

	state, _ := repo.State(context.Background())
	if state.State != StateStarting {
		t.Errorf("state = %s, want STARTING", state.State)
	}
}

func TestMachineStartSkipsOnlineNAS(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: true}
	nasRelay := &stubRelay{enabled: true, on: true}
	machine := newTestMachine(repo, nas, nasRelay, &stubRelay{}, false)

	res := Result{Decision: DecisionStartNAS, Reason: "manual start"}
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := nasRelay.callLog(); len(got) != 0 {
		t.Errorf("relay cycled under a live NAS: %v", got)
	}
}

func TestMachineStartVuPlusOnly(t *testing.T) {
	repo := &memRepo{}
	nasRelay := &stubRelay{enabled: true}
	vuRelay := &stubRelay{enabled: true}
	machine := newTestMachine(repo, &stubNAS{}, nasRelay, vuRelay, false)

	res := Result{Decision: DecisionStartVuPlus, Reason: "manual start"}
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := vuRelay.callLog(); len(got) != 1 || got[0] != "on" {
		t.Errorf("receiver relay calls = %v, want [on]", got)
	}
	if got := nasRelay.callLog(); len(got) != 0 {
		t.Errorf("nas relay touched by receiver start: %v", got)
	}
}

// ─── Shutting down ───────────────────────────────────────────────────────

func TestMachineShutdownNAS(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: true, dropAfterHalt: true}
	nasRelay := &stubRelay{enabled: true, on: true}
	machine := newTestMachine(repo, nas, nasRelay, &stubRelay{}, false)

	res := Result{Decision: DecisionShutdownNAS, Reason: "idle (day)"}
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if nas.shutdownCalls != 1 {
		t.Errorf("shutdown calls = %d, want 1", nas.shutdownCalls)
	}
	if got := nasRelay.callLog(); len(got) != 1 || got[0] != "off" {
		t.Errorf("relay calls = %v, want [off] after confirmed halt", got)
	}

	state, _ := repo.State(context.Background())
	if state.State != StateNASOff {
		t.Errorf("state = %s, want NAS_OFF", state.State)
	}
}

func TestMachineShutdownNASAlreadyOffline(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: false}
	nasRelay := &stubRelay{enabled: true}
	machine := newTestMachine(repo, nas, nasRelay, &stubRelay{}, false)

	res := Result{Decision: DecisionShutdownNAS, Reason: "idle (day)"}
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if nas.shutdownCalls != 0 {
		t.Error("shutdown delivered to an unreachable NAS")
	}
	if got := nasRelay.callLog(); len(got) != 0 {
		t.Errorf("relay calls = %v, want none", got)
	}

	// An already-off NAS short-circuits to the quiet outcome.
	state, _ := repo.State(context.Background())
	if state.State != StateIdle {
		t.Errorf("state = %s, want IDLE", state.State)
	}
	if state.LastDecision != DecisionNoAction {
		t.Errorf("decision = %s, want NO_ACTION", state.LastDecision)
	}
}

func TestMachineShutdownTimeout(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: true} // stays reachable, halt never confirms
	nasRelay := &stubRelay{enabled: true, on: true}
	machine := newTestMachine(repo, nas, nasRelay, &stubRelay{}, false)

	res := Result{Decision: DecisionShutdownNAS, Reason: "idle (day)"}
	err := machine.Apply(context.Background(), res, nil, nil)
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("error = %v, want ErrShutdownTimeout", err)
	}

	// Relay must stay on: power off under a live filesystem is the one
	// failure mode this controller exists to prevent.
	if got := nasRelay.callLog(); len(got) != 0 {
		t.Errorf("relay cut despite unconfirmed shutdown: %v", got)
	}

	// The timeout is a transient, not a device fault: the state stays
	// SHUTTING_DOWN and the next tick retries.
	state, _ := repo.State(context.Background())
	if state.State != StateShuttingDown {
		t.Errorf("state = %s, want SHUTTING_DOWN", state.State)
	}
	if entry := repo.lastEntry(); entry == nil || entry.Decision != DecisionShutdownNAS {
		t.Errorf("log entry = %+v, want the shutdown decision, not a fault", entry)
	}
}

func TestMachineShutdownAll(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: true, dropAfterHalt: true}
	nasRelay := &stubRelay{enabled: true, on: true}
	vuRelay := &stubRelay{enabled: true, on: true}
	machine := newTestMachine(repo, nas, nasRelay, vuRelay, false)

	res := Result{Decision: DecisionShutdownAll, Reason: "idle (night)"}
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if got := vuRelay.callLog(); len(got) != 1 || got[0] != "off" {
		t.Errorf("receiver relay calls = %v, want [off]", got)
	}
	state, _ := repo.State(context.Background())
	if state.State != StateIdle {
		t.Errorf("state = %s, want IDLE", state.State)
	}
}

func TestMachineShutdownAllCutsReceiverOnNASTimeout(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: true} // halt never confirms
	nasRelay := &stubRelay{enabled: true, on: true}
	vuRelay := &stubRelay{enabled: true, on: true}
	machine := newTestMachine(repo, nas, nasRelay, vuRelay, false)

	res := Result{Decision: DecisionShutdownAll, Reason: "idle (night)"}
	err := machine.Apply(context.Background(), res, nil, nil)
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("error = %v, want ErrShutdownTimeout", err)
	}

	// The receiver goes down before the NAS sequence starts, so a NAS
	// that refuses to confirm cannot leave it burning all night.
	if got := vuRelay.callLog(); len(got) != 1 || got[0] != "off" {
		t.Errorf("receiver relay calls = %v, want [off]", got)
	}
	if got := nasRelay.callLog(); len(got) != 0 {
		t.Errorf("nas relay cut despite unconfirmed shutdown: %v", got)
	}
}

// ─── Faults and transitions ──────────────────────────────────────────────

func TestMachineRelayFaultRecordsError(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: false}
	nasRelay := &stubRelay{enabled: true, setErr: errors.New("relay unreachable")}
	machine := newTestMachine(repo, nas, nasRelay, &stubRelay{}, false)

	res := Result{Decision: DecisionStartRequired, Reason: "recording: Tatort"}
	if err := machine.Apply(context.Background(), res, nil, nil); err == nil {
		t.Fatal("expected error from failed relay")
	}

	state, _ := repo.State(context.Background())
	if state.State != StateError {
		t.Errorf("state = %s, want ERROR", state.State)
	}
	if entry := repo.lastEntry(); entry == nil || entry.Decision != DecisionErrorDevice {
		t.Errorf("fault not logged as ERROR_REQUIRED_DEVICE: %+v", entry)
	}
}

func TestMachineSinceMovesOnlyOnTransition(t *testing.T) {
	repo := &memRepo{}
	nas := &stubNAS{online: true}
	machine := newTestMachine(repo, nas, &stubRelay{}, &stubRelay{}, false)

	res := Result{Decision: DecisionKeepRunning, Reason: "recording: Tatort"}
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	first, _ := repo.State(context.Background())

	time.Sleep(5 * time.Millisecond)
	if err := machine.Apply(context.Background(), res, nil, nil); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	second, _ := repo.State(context.Background())

	if second.State != StateRunning {
		t.Fatalf("state = %s, want RUNNING", second.State)
	}
	if !second.Since.Equal(first.Since) {
		t.Errorf("Since moved without a transition: %v -> %v", first.Since, second.Since)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) && !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestMachineAnnotations(t *testing.T) {
	repo := &memRepo{}
	machine := newTestMachine(repo, &stubNAS{online: true}, &stubRelay{}, &stubRelay{}, false)

	window := "evening viewing"
	res := Result{Decision: DecisionKeepRunning, Reason: "scheduled window evening viewing"}
	if err := machine.Apply(context.Background(), res, &window, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	state, _ := repo.State(context.Background())
	if state.LastWindow == nil || *state.LastWindow != "evening viewing" {
		t.Errorf("LastWindow = %v, want evening viewing", state.LastWindow)
	}
	if state.LastRecording != nil {
		t.Errorf("LastRecording = %v, want nil", state.LastRecording)
	}
}

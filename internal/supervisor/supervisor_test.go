package supervisor

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return New(Config{ProjectDir: t.TempDir()})
}

func addProcess(s *Supervisor, id string, policy RestartPolicy) *process {
	p := &process{
		def:            AgentDef{ID: id, Name: id, RestartPolicy: policy},
		state:          StateRunning,
		restartBackoff: initialBackoff,
		startedAt:      time.Now(),
	}
	s.mu.Lock()
	s.processes[id] = p
	s.mu.Unlock()
	return p
}

func TestCheckRestartOnFailureRespawnsOnNonZeroExit(t *testing.T) {
	s := newTestSupervisor(t)
	addProcess(s, "user0", RestartOnFailure)

	s.checkRestart("user0", 1)

	s.mu.Lock()
	p := s.processes["user0"]
	s.mu.Unlock()

	require.Equal(t, StateStopped, p.state)
	require.Equal(t, 1, p.restartCount)
	require.Len(t, p.restartTimes, 1)
}

func TestCheckRestartOnFailureIgnoresCleanExit(t *testing.T) {
	s := newTestSupervisor(t)
	addProcess(s, "user0", RestartOnFailure)

	s.checkRestart("user0", 0)

	s.mu.Lock()
	p := s.processes["user0"]
	s.mu.Unlock()

	require.Equal(t, StateStopped, p.state)
	require.Equal(t, 0, p.restartCount)
}

func TestCheckRestartNeverPolicyNeverRestarts(t *testing.T) {
	s := newTestSupervisor(t)
	addProcess(s, "nostr-relay", RestartNever)

	s.checkRestart("nostr-relay", 1)

	s.mu.Lock()
	p := s.processes["nostr-relay"]
	s.mu.Unlock()
	require.Equal(t, 0, p.restartCount)
}

func TestCheckRestartBackoffDoublesAndCapsAtMax(t *testing.T) {
	s := newTestSupervisor(t)
	addProcess(s, "user0", RestartAlways)

	wantDelays := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 16 * time.Second}
	for i, want := range wantDelays {
		s.mu.Lock()
		p := s.processes["user0"]
		gotDelay := p.restartBackoff
		if gotDelay > maxBackoff {
			gotDelay = maxBackoff
		}
		s.mu.Unlock()
		require.Equalf(t, want, gotDelay, "iteration %d", i)

		s.checkRestart("user0", 1)
		// re-mark running so the next checkRestart call models a fresh exit
		s.mu.Lock()
		s.processes["user0"].state = StateRunning
		s.mu.Unlock()
	}
}

func TestCheckRestartTripsLimitAtTenInFiveMinutes(t *testing.T) {
	s := newTestSupervisor(t)
	addProcess(s, "user0", RestartAlways)

	for i := 0; i < restartLimit; i++ {
		s.checkRestart("user0", 1)
		s.mu.Lock()
		s.processes["user0"].state = StateRunning
		s.mu.Unlock()
	}

	s.mu.Lock()
	p := s.processes["user0"]
	countBeforeLimit := p.restartCount
	s.mu.Unlock()
	require.Equal(t, restartLimit, countBeforeLimit)

	// The 11th failure should be refused: restart count must not increase.
	s.checkRestart("user0", 1)
	s.mu.Lock()
	p = s.processes["user0"]
	s.mu.Unlock()
	require.Equal(t, restartLimit, p.restartCount, "restart count must not grow past the limit")
}

func TestCheckRestartWindowExpiresOldAttempts(t *testing.T) {
	s := newTestSupervisor(t)
	addProcess(s, "user0", RestartAlways)

	s.mu.Lock()
	p := s.processes["user0"]
	stale := time.Now().Add(-restartWindow - time.Minute)
	for i := 0; i < restartLimit; i++ {
		p.restartTimes = append(p.restartTimes, stale)
	}
	s.mu.Unlock()

	s.checkRestart("user0", 1)

	s.mu.Lock()
	p = s.processes["user0"]
	s.mu.Unlock()
	require.Len(t, p.restartTimes, 1, "stale restart timestamps outside the window must be pruned")
	require.Equal(t, 1, p.restartCount)
}

func TestFormatStatusIncludesHeaderAndAgentRows(t *testing.T) {
	s := newTestSupervisor(t)
	addProcess(s, "nostr-relay", RestartAlways)
	p := addProcess(s, "user0", RestartOnFailure)
	p.pid = 4242

	out := s.FormatStatus()

	require.True(t, strings.HasPrefix(out, "Agent"))
	require.Contains(t, out, "nostr-relay")
	require.Contains(t, out, "user0")
	require.Contains(t, out, "4242")
}

func TestStatusesSortedByAgentID(t *testing.T) {
	s := newTestSupervisor(t)
	addProcess(s, "user1", RestartAlways)
	addProcess(s, "nostr-relay", RestartAlways)
	addProcess(s, "cashu-mint", RestartAlways)

	statuses := s.Statuses()
	require.Len(t, statuses, 3)
	require.Equal(t, "cashu-mint", statuses[0].AgentID)
	require.Equal(t, "nostr-relay", statuses[1].AgentID)
	require.Equal(t, "user1", statuses[2].AgentID)
}

func TestLoadManifestDefaultsRestartPolicyAndName(t *testing.T) {
	dir := t.TempDir()
	manifestPath := dir + "/agents.json"
	require.NoError(t, os.WriteFile(manifestPath, []byte(`{"agents":[{"id":"user0","command":"./zapuser"}]}`), 0644))

	m, err := LoadManifest(manifestPath)
	require.NoError(t, err)
	require.Len(t, m.Agents, 1)
	require.Equal(t, RestartOnFailure, m.Agents[0].RestartPolicy)
	require.Equal(t, "user0", m.Agents[0].Name)
}

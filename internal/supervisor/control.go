package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zap-empire/zapempire/pkg/logging"
)

const controlReadTimeout = 5 * time.Second

// ControlServer exposes a Unix-domain-socket line protocol for zapctl:
// status/start/stop/restart/shutdown. Grounded on
// supervisor.py::start_control_server/_handle_control_client/_execute_command.
type ControlServer struct {
	sock       string
	supervisor *Supervisor
	listener   net.Listener
	log        *logging.Logger

	onShutdown func()
}

// NewControlServer constructs a control server bound to
// <projectDir>/data/system-master/control.sock.
func NewControlServer(projectDir string, sup *Supervisor, onShutdown func()) *ControlServer {
	return &ControlServer{
		sock:       filepath.Join(projectDir, "data", "system-master", "control.sock"),
		supervisor: sup,
		log:        logging.Default().Component("control"),
		onShutdown: onShutdown,
	}
}

// SocketPath returns the Unix socket path this server binds.
func (c *ControlServer) SocketPath() string { return c.sock }

// Start removes any stale socket and begins accepting connections in the
// background. Accept loop runs until ctx is cancelled or Close is called.
func (c *ControlServer) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.sock), 0755); err != nil {
		return fmt.Errorf("create control socket dir: %w", err)
	}
	_ = os.Remove(c.sock)

	ln, err := net.Listen("unix", c.sock)
	if err != nil {
		return fmt.Errorf("listen control socket: %w", err)
	}
	c.listener = ln
	c.log.Info("control server listening", "socket", c.sock)

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	go c.acceptLoop()
	return nil
}

func (c *ControlServer) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		go c.handle(conn)
	}
}

// Close stops accepting connections and removes the socket file.
func (c *ControlServer) Close() error {
	if c.listener == nil {
		return nil
	}
	err := c.listener.Close()
	_ = os.Remove(c.sock)
	return err
}

func (c *ControlServer) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(controlReadTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}
	fields := strings.Fields(line)
	var cmd string
	var args []string
	if len(fields) > 0 {
		cmd = fields[0]
		args = fields[1:]
	}

	resp := c.execute(cmd, args)
	_, _ = conn.Write([]byte(resp))
}

func (c *ControlServer) execute(cmd string, args []string) string {
	switch cmd {
	case "status":
		return c.supervisor.FormatStatus() + "\n"

	case "stop":
		if len(args) == 0 {
			return "usage: stop <agent-id>\n"
		}
		agentID := args[0]
		if !c.supervisor.hasAgent(agentID) {
			return fmt.Sprintf("Unknown agent: %s\n", agentID)
		}
		c.supervisor.StopAgent(agentID)
		return fmt.Sprintf("Stopped %s\n", agentID)

	case "start":
		if len(args) == 0 {
			return "usage: start <agent-id>\n"
		}
		agentID := args[0]
		if !c.supervisor.hasAgent(agentID) {
			return fmt.Sprintf("Unknown agent: %s\n", agentID)
		}
		if c.supervisor.SpawnAgent(agentID) {
			return fmt.Sprintf("Started %s\n", agentID)
		}
		return fmt.Sprintf("Failed to start %s\n", agentID)

	case "restart":
		if len(args) == 0 {
			return "usage: restart <agent-id>\n"
		}
		agentID := args[0]
		if !c.supervisor.hasAgent(agentID) {
			return fmt.Sprintf("Unknown agent: %s\n", agentID)
		}
		c.supervisor.StopAgent(agentID)
		time.Sleep(1 * time.Second)
		if c.supervisor.SpawnAgent(agentID) {
			return fmt.Sprintf("Restarted %s\n", agentID)
		}
		return fmt.Sprintf("Failed to restart %s\n", agentID)

	case "shutdown":
		if c.onShutdown != nil {
			go c.onShutdown()
		}
		return "Shutdown initiated\n"

	default:
		return "Commands:\n" +
			"  status              Show all agent statuses\n" +
			"  start <agent-id>    Start an agent\n" +
			"  stop <agent-id>     Stop an agent\n" +
			"  restart <agent-id>  Restart an agent\n" +
			"  shutdown            Shutdown entire system\n"
	}
}

func (s *Supervisor) hasAgent(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processes[agentID]
	return ok
}

// Command zapctl is the control CLI for a running zapmaster: it talks to
// the supervisor's Unix control socket to report status and start, stop,
// restart, or shut down managed agents. Grounded on
// original_source/src/master/zapctl.py.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

const dialTimeout = 10 * time.Second

func findProjectDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "agents.json")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	wd, _ := os.Getwd()
	return wd
}

func socketPath() string {
	return filepath.Join(findProjectDir(), "data", "system-master", "control.sock")
}

func sendCommand(command string) (string, error) {
	sock := socketPath()
	if _, err := os.Stat(sock); err != nil {
		return "", fmt.Errorf("zapmaster is not running (control socket not found at %s)", sock)
	}

	conn, err := net.DialTimeout("unix", sock, dialTimeout)
	if err != nil {
		return "", fmt.Errorf("zapmaster is not accepting connections: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(dialTimeout))
	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", err
	}
	if tc, ok := conn.(*net.UnixConn); ok {
		_ = tc.CloseWrite()
	}

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(out), nil
}

func runCommand(command string) error {
	resp, err := sendCommand(command)
	if err != nil {
		return err
	}
	fmt.Print(resp)
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zapctl",
		Short: "Control CLI for the Zap Empire agent supervisor",
	}

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show all agent statuses",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runCommand("status") },
	})

	root.AddCommand(&cobra.Command{
		Use:   "start <agent-id>",
		Short: "Start an agent",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runCommand("start " + args[0]) },
	})

	root.AddCommand(&cobra.Command{
		Use:   "stop <agent-id>",
		Short: "Stop an agent",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runCommand("stop " + args[0]) },
	})

	root.AddCommand(&cobra.Command{
		Use:   "restart <agent-id>",
		Short: "Restart an agent",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runCommand("restart " + args[0]) },
	})

	root.AddCommand(&cobra.Command{
		Use:   "logs <agent-id>",
		Short: "Tail an agent's stdout log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logFile := filepath.Join(findProjectDir(), "logs", args[0], "stdout.log")
			if _, err := os.Stat(logFile); err != nil {
				return fmt.Errorf("no logs found for %s (expected %s)", args[0], logFile)
			}
			tail := exec.Command("tail", "-f", "-n", "50", logFile)
			tail.Stdout = os.Stdout
			tail.Stderr = os.Stderr
			return tail.Run()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "shutdown",
		Short: "Shut down the entire system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("Shutdown all agents? [y/N] ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if answer != "y\n" && answer != "Y\n" {
				fmt.Println("Cancelled")
				return nil
			}
			return runCommand("shutdown")
		},
	})

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

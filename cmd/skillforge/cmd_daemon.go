package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/skillforge/internal/config"
)

// cmdStart starts the daemon in the background
func cmdStart() error {
	addr := daemonAddr()
	if isRunning(addr) {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("setup skillforge directory: %w", err)
	}

	bin, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(bin)
	cmd.Dir = dir
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning(addr) {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", addr)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'skillforge logs')")
}

// cmdStop sends SIGTERM to the daemon recorded in the pid file
func cmdStop() error {
	addr := daemonAddr()
	if !isRunning(addr) {
		fmt.Println("Daemon is not running")
		return nil
	}

	dir, err := config.Dir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning(addr) {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// cmdStatus shows daemon status
func cmdStatus() error {
	addr := daemonAddr()
	if !isRunning(addr) {
		fmt.Println("Status: stopped")
		return nil
	}

	var status struct {
		Status       string `json:"status"`
		Version      string `json:"version"`
		Uptime       int    `json:"uptime_seconds"`
		Mode         string `json:"mode"`
		Judge        string `json:"judge"`
		Storage      string `json:"storage"`
		AsyncGrading bool   `json:"async_grading"`
	}
	if err := getJSON(addr+"/v1/status", &status); err != nil {
		return err
	}

	var providers struct {
		Default   string   `json:"default"`
		Providers []string `json:"providers"`
	}
	if err := getJSON(addr+"/v1/providers", &providers); err != nil {
		return err
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Uptime:    %s\n", time.Duration(status.Uptime)*time.Second)
	fmt.Printf("AI mode:   %s (default %s; %s)\n", status.Mode, providers.Default, strings.Join(providers.Providers, ", "))
	fmt.Printf("Judge:     %s\n", status.Judge)
	fmt.Printf("Storage:   %s\n", status.Storage)
	fmt.Printf("Async:     %v\n", status.AsyncGrading)
	fmt.Printf("Address:   %s\n", addr)
	return nil
}

// cmdLogs prints the tail of the daemon log
func cmdLogs() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(dir, "logs", "skillforged.log")
	file, err := os.Open(logPath)
	if os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// last ~4KB
	info, err := file.Stat()
	if err != nil {
		return err
	}
	offset := max(info.Size()-4096, 0)
	if _, err := file.Seek(offset, 0); err != nil {
		return err
	}

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}

// isRunning checks the daemon's health endpoint
func isRunning(addr string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(addr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the skillforged binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("skillforged"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "skillforged")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{"/usr/local/bin/skillforged", "./skillforged"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("skillforged binary not found (build with 'go build ./cmd/skillforged')")
}

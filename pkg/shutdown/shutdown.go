// Package shutdown owns fatal-exit handling: signal wiring for graceful
// stops and crash diagnostics written under the data path so a failed
// start leaves evidence behind.
package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"gptchat/pkg/logger"
)

// abortRecord is the machine-readable side of a crash; the referenced
// dump holds the human-readable detail.
type abortRecord struct {
	Time      string `json:"time"`
	Reason    string `json:"reason"`
	PID       int    `json:"pid"`
	CrashPath string `json:"crash_path,omitempty"`
}

// Abort logs a fatal startup error, writes crash diagnostics, waits for
// the optional delay so logs flush, and exits with status 2.
func Abort(reason string, err error, dbPath string, delaySeconds ...int) {
	delay := 10
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("startup_fatal", "msg", reason, "error", err)
	dumpPath, werr := WriteCrashDump(dbPath, reason, err)
	if werr != nil {
		logger.Error("crash_dump_failed", "error", werr)
		fmt.Fprintf(os.Stderr, "failed to write crash dump: %v\n", werr)
	} else {
		logger.Error("crash_dump_written", "path", dumpPath)
	}
	if delay > 0 {
		time.Sleep(time.Duration(delay) * time.Second)
	}
	os.Exit(2)
}

// WriteCrashDump writes a goroutine/environment dump under
// <dbPath>/state/crash and a JSON abort record under <dbPath>/state/abort
// pointing at it. Returns the dump path.
func WriteCrashDump(dbPath, reason string, err error) (string, error) {
	crashDir := "./crash"
	abortDir := "./abort"
	if dbPath != "" {
		crashDir = filepath.Join(dbPath, "state", "crash")
		abortDir = filepath.Join(dbPath, "state", "abort")
	}
	for _, d := range []string{crashDir, abortDir} {
		if e := os.MkdirAll(d, 0o700); e != nil {
			return "", fmt.Errorf("create %s: %w", d, e)
		}
	}

	ts := time.Now().UnixNano()
	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", ts))

	f, ferr := os.CreateTemp(crashDir, ".crash-*.tmp")
	if ferr != nil {
		return "", fmt.Errorf("create temp crash file: %w", ferr)
	}
	tmpName := f.Name()
	defer os.Remove(tmpName)

	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", err)
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	f.Sync()
	f.Close()

	if err := os.Rename(tmpName, dumpPath); err != nil {
		return "", fmt.Errorf("move crash dump: %w", err)
	}
	os.Chmod(dumpPath, 0o600)

	rec := abortRecord{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		PID:       os.Getpid(),
		CrashPath: dumpPath,
	}
	if err := writeAbortRecord(abortDir, ts, rec); err != nil {
		return dumpPath, err
	}
	return dumpPath, nil
}

// RequestExit writes an operator abort record without a crash dump and
// returns its path.
func RequestExit(dbPath, reason string) (string, error) {
	abortDir := "./abort"
	if dbPath != "" {
		abortDir = filepath.Join(dbPath, "state", "abort")
	}
	if err := os.MkdirAll(abortDir, 0o700); err != nil {
		return "", err
	}
	ts := time.Now().UnixNano()
	rec := abortRecord{Time: time.Now().UTC().Format(time.RFC3339), Reason: reason, PID: os.Getpid()}
	if err := writeAbortRecord(abortDir, ts, rec); err != nil {
		return "", err
	}
	return filepath.Join(abortDir, fmt.Sprintf("req-%d.json", ts)), nil
}

func writeAbortRecord(dir string, ts int64, rec abortRecord) error {
	tmp, err := os.CreateTemp(dir, ".req-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	tmp.Sync()
	tmp.Close()
	final := filepath.Join(dir, fmt.Sprintf("req-%d.json", ts))
	if err := os.Rename(name, final); err != nil {
		os.Remove(name)
		return err
	}
	os.Chmod(final, 0o600)
	return nil
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE additionally dumps goroutine stacks to the log before
// cancelling, which is the usual tell for a dead peer on the SSE path.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String())
		cancel()
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		s := <-sigpipe
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		logger.Info("signal_received", "signal", s.String(), "stacks", string(buf[:n]))
		cancel()
	}()

	return ctx, cancel
}

// Package logging is a process-wide log writer. It writes to stdout, and
// optionally to a file as well. It does not add prefixes or force newlines.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	file    *bufio.Writer
	fileOS  *os.File
	verbose = true
)

// AlsoToFile additionally writes all log output to fileName, truncating it
func AlsoToFile(fileName string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	fileOS = f
	file = bufio.NewWriter(f)
	return nil
}

// SetOutput replaces stdout as the primary destination
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetVerbose toggles the Debugf output
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

func closeFile() error {
	if file == nil {
		return nil
	}
	if err := file.Flush(); err != nil {
		return err
	}
	err := fileOS.Close()
	file, fileOS = nil, nil
	return err
}

func write(s string) {
	mu.Lock()
	defer mu.Unlock()
	io.WriteString(out, s)
	if file != nil {
		file.WriteString(s)
	}
}

func Print(args ...interface{}) {
	write(fmt.Sprint(args...))
}

func Println(args ...interface{}) {
	write(fmt.Sprintln(args...))
}

func Printf(format string, args ...interface{}) {
	write(fmt.Sprintf(format, args...))
}

// Debugf logs only in verbose mode
func Debugf(format string, args ...interface{}) {
	mu.Lock()
	v := verbose
	mu.Unlock()
	if v {
		Printf(format, args...)
	}
}

// Fatalf logs, flushes the log file and exits with status 1
func Fatalf(format string, args ...interface{}) {
	Printf(format, args...)
	Close()
	os.Exit(1)
}

// Sync flushes the log file to disk
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	if err := file.Flush(); err != nil {
		return err
	}
	return fileOS.Sync()
}

// Close flushes and closes the log file, if any
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeFile()
}

// Package nlog - fileflow logger: severities, buffering, timestamping, flushing
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const flushSize = 32 * 1024

var sevText = [...]string{"I", "W", "E"}

type nlogger struct {
	mw  sync.Mutex
	w   *bufio.Writer
	out io.Writer
}

var (
	mu      sync.Mutex
	loggers [3]*nlogger

	toStderr     bool
	alsoToStderr bool
	logDir       string
	title        string
)

func init() {
	for sev := range loggers {
		loggers[sev] = &nlogger{out: os.Stderr, w: bufio.NewWriterSize(os.Stderr, flushSize)}
	}
	toStderr = true
}

// SetLogDir redirects info and error severities to files under dir;
// warnings go to the info log (as in: two physical logs).
func SetLogDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
	toStderr = false
	for _, sev := range []severity{sevInfo, sevErr} {
		f, err := os.OpenFile(filepath.Join(dir, sname()+"."+sevText[sev]+".log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		loggers[sev].setOut(f)
	}
	loggers[sevWarn].setOut(loggers[sevInfo].out)
	return nil
}

func (l *nlogger) setOut(w io.Writer) {
	l.mw.Lock()
	l.w.Flush()
	l.out = w
	l.w = bufio.NewWriterSize(w, flushSize)
	l.mw.Unlock()
}

func sname() string {
	if title != "" {
		return title
	}
	return filepath.Base(os.Args[0])
}

func log(sev severity, depth int, format string, args ...any) {
	var (
		now  = time.Now()
		line = header(sev, depth+3, now)
	)
	if format == "" {
		line += fmt.Sprintln(args...)
	} else {
		line += fmt.Sprintf(format, args...)
		if line == "" || line[len(line)-1] != '\n' {
			line += "\n"
		}
	}
	write(sev, line)
	if sev == sevErr && !toStderr && alsoToStderr {
		os.Stderr.WriteString(line)
	}
}

func write(sev severity, line string) {
	l := loggers[sev]
	l.mw.Lock()
	l.w.WriteString(line)
	if toStderr || sev == sevErr {
		l.w.Flush()
	}
	l.mw.Unlock()

	// errors duplicate into the info log to keep a single readable timeline
	if sev == sevErr && !toStderr {
		li := loggers[sevInfo]
		li.mw.Lock()
		li.w.WriteString(line)
		li.mw.Unlock()
	}
}

func header(sev severity, depth int, now time.Time) string {
	_, file, ln, ok := runtime.Caller(depth)
	if !ok {
		file, ln = "???", 0
	} else {
		file = filepath.Base(file)
	}
	return sevText[sev] + " " + now.Format("15:04:05.000000") + " " +
		file + ":" + strconv.Itoa(ln) + " "
}

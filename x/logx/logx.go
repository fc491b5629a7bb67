// Package logx is a tiny tagged logger. Lines go through println by
// default so it works the same on MCU builds and on the host.
//
//	var log = logx.New("fram_pref")
//	log.Infof("pool: %d bytes", n)   // prints "[I][fram_pref] pool: 1024 bytes"
package logx

import (
	"fmt"
	"io"
)

type Level uint8

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelConfig
	LevelDebug
)

var letters = [...]byte{'-', 'E', 'W', 'I', 'C', 'D'}

// Threshold drops lines above it. Adjust at boot.
var Threshold = LevelDebug

// out, when non-nil, receives lines instead of println.
var out io.Writer

// SetOutput redirects log lines to w. nil restores println.
func SetOutput(w io.Writer) { out = w }

type Logger struct {
	tag string
}

func New(tag string) Logger { return Logger{tag: tag} }

func (l Logger) Errorf(format string, a ...any)  { l.logf(LevelError, format, a...) }
func (l Logger) Warnf(format string, a ...any)   { l.logf(LevelWarn, format, a...) }
func (l Logger) Infof(format string, a ...any)   { l.logf(LevelInfo, format, a...) }
func (l Logger) Configf(format string, a ...any) { l.logf(LevelConfig, format, a...) }
func (l Logger) Debugf(format string, a ...any)  { l.logf(LevelDebug, format, a...) }

func (l Logger) logf(lv Level, format string, a ...any) {
	if lv == LevelNone || lv > Threshold {
		return
	}
	line := "[" + string(letters[lv]) + "][" + l.tag + "] " + fmt.Sprintf(format, a...)
	if out != nil {
		_, _ = io.WriteString(out, line+"\n")
		return
	}
	println(line)
}

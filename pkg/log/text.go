// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// TextEmitter writes human readable lines, formatted by logrus.
type TextEmitter struct {
	*Writer
	logger *logrus.Logger
}

// NewTextEmitter returns a TextEmitter writing to w.
func NewTextEmitter(w io.Writer) *TextEmitter {
	writer := &Writer{Next: w}
	l := logrus.New()
	l.SetOutput(writer)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "0102 15:04:05.000000",
	})
	return &TextEmitter{Writer: writer, logger: l}
}

func toLogrus(level Level) logrus.Level {
	switch level {
	case Warning:
		return logrus.WarnLevel
	case Info:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// Emit implements Emitter.Emit.
func (e *TextEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	e.logger.WithTime(timestamp).Log(toLogrus(level), callerLine(depth+1, fmt.Sprintf(format, v...)))
}

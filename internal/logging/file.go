package logging

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileWriter returns a size/age-rotated writer for the given path, using the
// same lumberjack settings the teacher's daemons wire into their log
// handlers (see the teacher's go.mod direct dependency on
// gopkg.in/natefinch/lumberjack.v2).
func FileWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

package utils

import (
	"io"
	"sync"
)

type flusher interface {
	Flush() error
}

// FlushingWriter serializes writes and flushes buffered destinations after each one so
// report sections reach the terminal while rotation is still running.
type FlushingWriter struct {
	mutex       sync.Mutex
	destination io.Writer
}

// NewFlushingWriter wraps destination. Wrapping an existing FlushingWriter returns it unchanged.
func NewFlushingWriter(destination io.Writer) io.Writer {
	switch typed := destination.(type) {
	case nil:
		return nil
	case *FlushingWriter:
		return typed
	default:
		return &FlushingWriter{destination: destination}
	}
}

// Write delegates to the destination and flushes it when it supports flushing.
func (writer *FlushingWriter) Write(data []byte) (int, error) {
	if writer == nil || writer.destination == nil {
		return 0, nil
	}

	writer.mutex.Lock()
	defer writer.mutex.Unlock()

	bytesWritten, writeError := writer.destination.Write(data)
	if writeError != nil {
		return bytesWritten, writeError
	}
	if flushable, ok := writer.destination.(flusher); ok {
		return bytesWritten, flushable.Flush()
	}
	return bytesWritten, nil
}

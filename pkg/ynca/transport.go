// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// DialFunc opens the byte stream a Session runs on
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// LineWriter accepts one outbound line at a time
type LineWriter interface {
	WriteLine(line string) error
}

// LineTransport turns a byte stream into YNCA lines
type LineTransport interface {
	LineWriter
	ReadLine() (string, error)
	Close() error
}

// maxReadLine bounds a received line; longer lines are skipped
const maxReadLine = 16 * MaxLineLength

// lineConn frames a byte stream on LF, dropping a trailing CR. Reads and
// writes may run on different goroutines; Close may be called from either.
type lineConn struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewLineTransport wraps conn with CR/LF line framing
func NewLineTransport(conn io.ReadWriteCloser) LineTransport {
	return &lineConn{conn: conn, reader: bufio.NewReaderSize(conn, maxReadLine)}
}

// ReadLine returns the next line without its terminator. Other whitespace
// is kept. Empty lines are skipped and io.EOF marks a clean close.
//
// A line that does not fit the buffer is discarded up to its terminator
// and reported as ErrLineTooLong; the next call continues with the
// following line.
func (l *lineConn) ReadLine() (string, error) {
	for {
		chunk, err := l.reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", l.discardLine()
		}

		line := strings.TrimSuffix(strings.TrimSuffix(string(chunk), "\n"), "\r")
		if line != "" {
			// A final unterminated line is still delivered; the error
			// surfaces on the next call
			return line, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// discardLine skips the rest of an overlong line
func (l *lineConn) discardLine() error {
	for {
		_, err := l.reader.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err != nil:
			return err
		default:
			return ErrLineTooLong
		}
	}
}

// WriteLine writes line followed by CR/LF in a single Write call
func (l *lineConn) WriteLine(line string) error {
	_, err := io.WriteString(l.conn, line+LineTerminator)
	return err
}

func (l *lineConn) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

// OpenSerial opens a serial port with the fixed YNCA framing (8N1)
func OpenSerial(portName string, baudRate int) (io.ReadWriteCloser, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return port, nil
}

// SerialDialer returns a DialFunc for OpenSerial
func SerialDialer(portName string, baudRate int) DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return OpenSerial(portName, baudRate)
	}
}

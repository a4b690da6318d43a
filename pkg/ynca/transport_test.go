// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ynca

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// bufferConn is an in-memory ReadWriteCloser
type bufferConn struct {
	r      io.Reader
	w      bytes.Buffer
	closed int
}

func (b *bufferConn) Read(p []byte) (int, error)  { return b.r.Read(p) }
func (b *bufferConn) Write(p []byte) (int, error) { return b.w.Write(p) }
func (b *bufferConn) Close() error                { b.closed++; return nil }

func TestLineTransport_ReadLine(t *testing.T) {
	conn := &bufferConn{r: strings.NewReader("@MAIN:PWR=On\r\n\r\n@SYS:INPNAME1=My TV  \r\n @MAIN:VOL=-20.0\n@SYS:MODELNAME=RX-V671")}
	lt := NewLineTransport(conn)

	for _, want := range []string{"@MAIN:PWR=On", "@SYS:INPNAME1=My TV  ", " @MAIN:VOL=-20.0", "@SYS:MODELNAME=RX-V671"} {
		got, err := lt.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if got != want {
			t.Errorf("ReadLine = %q, want %q", got, want)
		}
	}
	if _, err := lt.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestLineTransport_KeepsValueWhitespace(t *testing.T) {
	lt := NewLineTransport(&bufferConn{r: strings.NewReader("@SYS:INPNAME1=My TV  \r\n")})

	line, err := lt.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	frame, err := ParseLine(line)
	if err != nil || frame == nil {
		t.Fatalf("ParseLine(%q) = %v, %v", line, frame, err)
	}
	if frame.Value() != "My TV  " {
		t.Errorf("value = %q, want %q", frame.Value(), "My TV  ")
	}

	// Leading whitespace is not a frame
	if frame, _ := ParseLine(" @MAIN:PWR=On"); frame != nil {
		t.Errorf("ParseLine accepted a line with leading whitespace: %v", frame)
	}
}

func TestLineTransport_SkipsOverlongLine(t *testing.T) {
	input := strings.Repeat("x", 3*maxReadLine) + "\r\n@MAIN:PWR=On\r\n"
	lt := NewLineTransport(&bufferConn{r: strings.NewReader(input)})

	if _, err := lt.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("first ReadLine = %v, want ErrLineTooLong", err)
	}
	line, err := lt.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine after overlong line: %v", err)
	}
	if line != "@MAIN:PWR=On" {
		t.Errorf("ReadLine = %q, want @MAIN:PWR=On", line)
	}
	if _, err := lt.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestLineTransport_OverlongLineAtEOF(t *testing.T) {
	lt := NewLineTransport(&bufferConn{r: strings.NewReader(strings.Repeat("x", 2*maxReadLine))})
	if _, err := lt.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadLine = %v, want io.EOF", err)
	}
}

func TestLineTransport_WriteLine(t *testing.T) {
	conn := &bufferConn{r: strings.NewReader("")}
	lt := NewLineTransport(conn)

	if err := lt.WriteLine("@MAIN:PWR=On"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if got := conn.w.String(); got != "@MAIN:PWR=On\r\n" {
		t.Errorf("wire = %q", got)
	}
}

func TestLineTransport_CloseOnce(t *testing.T) {
	conn := &bufferConn{r: strings.NewReader("")}
	lt := NewLineTransport(conn)
	lt.Close()
	lt.Close()
	if conn.closed != 1 {
		t.Errorf("underlying Close called %d times, want 1", conn.closed)
	}
}

func TestOpenSerial_MissingPort(t *testing.T) {
	_, err := OpenSerial("/dev/does-not-exist-ynca", 0)
	if err == nil {
		t.Fatal("expected error for missing port")
	}
	if !strings.Contains(err.Error(), "/dev/does-not-exist-ynca") {
		t.Errorf("error should name the port: %v", err)
	}
}

package framed

import (
	"bytes"
	"encoding/binary"
	"net"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("hello frame")
	errCh := make(chan error, 1)
	go func() {
		errCh <- writeFrame(client, 42, payload)
	}()

	requestID, data, err := readFrame(server, nil)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if writeErr := <-errCh; writeErr != nil {
		t.Fatalf("writeFrame failed: %v", writeErr)
	}

	if requestID != 42 {
		t.Errorf("Expected request ID 42, got %d", requestID)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Expected payload %q, got %q", payload, data)
	}
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- writeFrame(client, 7, nil)
	}()

	requestID, data, err := readFrame(server, nil)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if writeErr := <-errCh; writeErr != nil {
		t.Fatalf("writeFrame failed: %v", writeErr)
	}

	if requestID != 7 {
		t.Errorf("Expected request ID 7, got %d", requestID)
	}
	if len(data) != 0 {
		t.Errorf("Expected an empty payload, got %q", data)
	}
}

func TestFrameSequence(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		writeFrame(client, 1, []byte("first"))
		writeFrame(client, 2, []byte("second"))
	}()

	for i, want := range []string{"first", "second"} {
		requestID, data, err := readFrame(server, nil)
		if err != nil {
			t.Fatalf("readFrame %d failed: %v", i, err)
		}
		if requestID != uint64(i+1) {
			t.Errorf("Expected request ID %d, got %d", i+1, requestID)
		}
		if string(data) != want {
			t.Errorf("Expected payload %q, got %q", want, data)
		}
	}
}

func TestReadFrameGrowsSmallBuffer(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := bytes.Repeat([]byte("x"), 256)
	go writeFrame(client, 3, payload)

	// The provided buffer holds the header but not the payload
	_, data, err := readFrame(server, make([]byte, 16))
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Payload corrupted after buffer growth")
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	err := writeFrame(nil, 1, make([]byte, maxFrameSize+1))
	if err == nil || !strings.Contains(err.Error(), "exceeds the maximum") {
		t.Errorf("Expected an oversize error, got %v", err)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Craft a header announcing a payload above the frame limit
	header := make([]byte, 12)
	binary.BigEndian.PutUint64(header[:8], 1)
	binary.BigEndian.PutUint32(header[8:12], maxFrameSize+1)
	go client.Write(header)

	_, _, err := readFrame(server, nil)
	if err == nil || !strings.Contains(err.Error(), "exceeds the maximum") {
		t.Errorf("Expected an oversize error, got %v", err)
	}
}

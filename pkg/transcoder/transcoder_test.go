package transcoder

import (
	"bytes"
	"strings"
	"testing"
)

func TestDefaultRoundTripBytes(t *testing.T) {
	d := Default{}
	flags, data, err := d.Encode([]byte("raw bytes"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out []byte
	if err := d.Decode(flags, data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, []byte("raw bytes")) {
		t.Errorf("got %q, want %q", out, "raw bytes")
	}
}

func TestDefaultRoundTripString(t *testing.T) {
	d := Default{}
	flags, data, err := d.Encode("hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out string
	if err := d.Decode(flags, data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

type widget struct {
	Name  string
	Count int
}

func TestDefaultRoundTripStruct(t *testing.T) {
	d := Default{}
	in := widget{Name: "gizmo", Count: 3}
	flags, data, err := d.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out widget
	if err := d.Decode(flags, data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestDefaultCompressesLargePayloads(t *testing.T) {
	d := Default{}
	large := strings.Repeat("x", compressThreshold*2)
	flags, data, err := d.Encode(large)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if flags&flagCompressed == 0 {
		t.Fatal("expected large payload to be compressed")
	}
	if len(data) >= len(large) {
		t.Errorf("compressed payload not smaller: %d vs %d", len(data), len(large))
	}
	var out string
	if err := d.Decode(flags, data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != large {
		t.Error("decoded payload does not match original")
	}
}

func TestDefaultDisableCompressionHonored(t *testing.T) {
	d := Default{DisableCompression: true}
	large := strings.Repeat("y", compressThreshold*2)
	flags, _, err := d.Encode(large)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if flags&flagCompressed != 0 {
		t.Error("expected compression to be disabled")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		CanonicalKey: "user:123",
		Flags:        7,
		PayloadBytes: []byte("payload bytes"),
		TTL:          60,
		WriteTime:    1700000000,
	}
	flags, data, err := EnvelopeTranscoder.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out Envelope
	if err := EnvelopeTranscoder.Decode(flags, data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.CanonicalKey != env.CanonicalKey || out.Flags != env.Flags ||
		!bytes.Equal(out.PayloadBytes, env.PayloadBytes) || out.TTL != env.TTL || out.WriteTime != env.WriteTime {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, env)
	}
}

func TestEnvelopeEncodeRejectsWrongType(t *testing.T) {
	if _, _, err := EnvelopeTranscoder.Encode("not an envelope"); err == nil {
		t.Fatal("expected error for non-Envelope value")
	}
}

package graph

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestBinaryRoundTrip(t *testing.T) {
	g := NewMultigraph(30.27, -97.74)
	a := g.AddNode(10, 30.270, -97.740)
	b := g.AddNode(11, 30.271, -97.741)
	c := g.AddNode(12, 30.272, -97.740)
	g.AddLink(100, a, b)
	g.AddLink(101, b, c)
	g.AddLink(102, c, a)

	path := filepath.Join(t.TempDir(), "net.bin")
	if err := WriteBinary(path, g); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	got, err := ReadBinary(path)
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}

	if len(got.Nodes()) != 3 {
		t.Fatalf("got %d nodes, want 3", len(got.Nodes()))
	}
	if len(got.Links()) != 3 {
		t.Fatalf("got %d links, want 3", len(got.Links()))
	}
	for uid, want := range g.Links() {
		gl, ok := got.LinkByUID(uid)
		if !ok {
			t.Fatalf("link uid %d missing after round trip", uid)
		}
		if gl.ID != want.ID || gl.Origin.ID != want.Origin.ID || gl.Dest.ID != want.Dest.ID {
			t.Errorf("link uid %d = (%d, %d->%d), want (%d, %d->%d)",
				uid, gl.ID, gl.Origin.ID, gl.Dest.ID, want.ID, want.Origin.ID, want.Dest.ID)
		}
		if math.Abs(gl.Length-want.Length) > 1e-9 {
			t.Errorf("link uid %d length = %v, want %v", uid, gl.Length, want.Length)
		}
	}
}

func TestReadBinaryRejectsCorruption(t *testing.T) {
	g := NewMultigraph(0, 0)
	a := g.AddNode(1, 0, 0)
	b := g.AddNode(2, 0.001, 0)
	g.AddLink(7, a, b)

	path := filepath.Join(t.TempDir(), "net.bin")
	if err := WriteBinary(path, g); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadBinary(path); err == nil {
		t.Fatal("expected corrupted file to fail the CRC check")
	}
}

package graph

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
	"unsafe"
)

const (
	netMagicBytes = "NMCGRAPH"
	netVersion    = uint32(1)
	netMaxNodes   = 10_000_000
	netMaxLinks   = 50_000_000
)

// netFileHeader is the binary header of a serialized road network.
type netFileHeader struct {
	Magic     [8]byte
	Version   uint32
	NumNodes  uint32
	NumLinks  uint32
	_         uint32 // pad to 8-byte alignment for the float64 fields
	CenterLat float64
	CenterLon float64
}

// WriteBinary serializes g to a binary file: header, node arrays, link
// arrays, CRC32 trailer. Fixed-stride arrays are written with
// unsafe.Slice for zero-copy I/O. Nodes are written sorted by id and
// links sorted by uid, so a graph whose uids were issued sequentially
// from zero reads back with identical uids.
func WriteBinary(path string, g *Multigraph) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	nodes := make([]*Node, 0, len(g.Nodes()))
	for _, n := range g.Nodes() {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	links := make([]*Link, 0, len(g.Links()))
	for _, l := range g.Links() {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].UID < links[j].UID })

	hdr := netFileHeader{
		Version:   netVersion,
		NumNodes:  uint32(len(nodes)),
		NumLinks:  uint32(len(links)),
		CenterLat: g.CenterLat,
		CenterLon: g.CenterLon,
	}
	copy(hdr.Magic[:], netMagicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	nodeID := make([]int64, len(nodes))
	nodeLat := make([]float64, len(nodes))
	nodeLon := make([]float64, len(nodes))
	for i, n := range nodes {
		nodeID[i] = n.ID
		nodeLat[i] = n.Lat
		nodeLon[i] = n.Lon
	}
	if err := writeInt64Slice(w, nodeID); err != nil {
		return fmt.Errorf("write node ids: %w", err)
	}
	if err := writeFloat64Slice(w, nodeLat); err != nil {
		return fmt.Errorf("write node lats: %w", err)
	}
	if err := writeFloat64Slice(w, nodeLon); err != nil {
		return fmt.Errorf("write node lons: %w", err)
	}

	linkID := make([]int64, len(links))
	linkOrigin := make([]int64, len(links))
	linkDest := make([]int64, len(links))
	for i, l := range links {
		linkID[i] = l.ID
		linkOrigin[i] = l.Origin.ID
		linkDest[i] = l.Dest.ID
	}
	if err := writeInt64Slice(w, linkID); err != nil {
		return fmt.Errorf("write link ids: %w", err)
	}
	if err := writeInt64Slice(w, linkOrigin); err != nil {
		return fmt.Errorf("write link origins: %w", err)
	}
	if err := writeInt64Slice(w, linkDest); err != nil {
		return fmt.Errorf("write link dests: %w", err)
	}

	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

// ReadBinary deserializes a Multigraph previously written by WriteBinary.
// Planar projections and link lengths are recomputed from the stored
// lat/lon and reference center rather than stored redundantly.
func ReadBinary(path string) (*Multigraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	var hdr netFileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != netMagicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != netVersion {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumNodes > netMaxNodes {
		return nil, fmt.Errorf("NumNodes %d exceeds limit %d", hdr.NumNodes, netMaxNodes)
	}
	if hdr.NumLinks > netMaxLinks {
		return nil, fmt.Errorf("NumLinks %d exceeds limit %d", hdr.NumLinks, netMaxLinks)
	}

	nodeID, err := readInt64Slice(r, int(hdr.NumNodes))
	if err != nil {
		return nil, fmt.Errorf("read node ids: %w", err)
	}
	nodeLat, err := readFloat64Slice(r, int(hdr.NumNodes))
	if err != nil {
		return nil, fmt.Errorf("read node lats: %w", err)
	}
	nodeLon, err := readFloat64Slice(r, int(hdr.NumNodes))
	if err != nil {
		return nil, fmt.Errorf("read node lons: %w", err)
	}

	linkID, err := readInt64Slice(r, int(hdr.NumLinks))
	if err != nil {
		return nil, fmt.Errorf("read link ids: %w", err)
	}
	linkOrigin, err := readInt64Slice(r, int(hdr.NumLinks))
	if err != nil {
		return nil, fmt.Errorf("read link origins: %w", err)
	}
	linkDest, err := readInt64Slice(r, int(hdr.NumLinks))
	if err != nil {
		return nil, fmt.Errorf("read link dests: %w", err)
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	g := NewMultigraph(hdr.CenterLat, hdr.CenterLon)
	for i := range nodeID {
		g.AddNode(nodeID[i], nodeLat[i], nodeLon[i])
	}
	for i := range linkID {
		origin, ok := g.NodeByID(linkOrigin[i])
		if !ok {
			return nil, fmt.Errorf("link %d references unknown origin node %d", linkID[i], linkOrigin[i])
		}
		dest, ok := g.NodeByID(linkDest[i])
		if !ok {
			return nil, fmt.Errorf("link %d references unknown dest node %d", linkID[i], linkDest[i])
		}
		g.AddLink(linkID[i], origin, dest)
	}
	return g, nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeInt64Slice(w io.Writer, s []int64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readInt64Slice(r io.Reader, n int) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

type crc32Writer struct {
	w    io.Writer
	hash interface {
		Write([]byte) (int, error)
		Sum32() uint32
	}
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash interface {
		Write([]byte) (int, error)
		Sum32() uint32
	}
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}

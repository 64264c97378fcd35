// Package dump serializes matched path hypotheses, keyed by shape id, to
// the binary format read back by a subsequent reconciliation or export
// pass: magic bytes and a version header, fields written with
// encoding/binary, a CRC32 trailer, and atomic temp-file-then-rename
// writes.
package dump

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/kperrine/nmc-map-matcher/pkg/graph"
	"github.com/kperrine/nmc-map-matcher/pkg/pathengine"
)

const (
	magicBytes = "NMCMATCH"
	version    = uint32(1)
	maxShapes  = 1_000_000
	maxEnds    = 1_000_000
)

type fileHeader struct {
	Magic     [8]byte
	Version   uint32
	NumShapes uint32
}

// LinkResolver supplies a graph's links keyed by uid; Read re-indexes
// them by domain id to resolve serialized link ids. graph.Multigraph and
// graph.SinglePathGraph satisfy it through their Links method.
type LinkResolver interface {
	Links() map[int64]*graph.Link
}

// Write serializes one matched-path hypothesis per shape id to path.
// pathsByShape's PathEnd chains must be in Flatten order (earliest
// sample first); Write does not walk Prev itself, since a reconciled
// chain may have had its Prev pointers rewired mid-hypothesis.
func Write(path string, pathsByShape map[string][]*pathengine.PathEnd) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	cw := &crc32Writer{w: f, hash: crc32.NewIEEE()}

	hdr := fileHeader{Version: version, NumShapes: uint32(len(pathsByShape))}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(cw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for shapeID, ends := range pathsByShape {
		if err := writeShape(cw, shapeID, ends); err != nil {
			return fmt.Errorf("write shape %s: %w", shapeID, err)
		}
	}

	checksum := cw.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func writeShape(w io.Writer, shapeID string, ends []*pathengine.PathEnd) error {
	if err := writeString(w, shapeID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ends))); err != nil {
		return err
	}
	for _, pe := range ends {
		if err := writePathEnd(w, pe); err != nil {
			return err
		}
	}
	return nil
}

func writePathEnd(w io.Writer, pe *pathengine.PathEnd) error {
	fields := []any{
		int32(pe.Sample.Seq),
		pe.Sample.Lat, pe.Sample.Lon, pe.Sample.X, pe.Sample.Y,
		pe.TotalDist, pe.TotalCost,
		boolByte(pe.Restart),
		boolByte(pe.Point != nil),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if err := writeString(w, pe.Sample.ShapeID); err != nil {
		return err
	}
	if pe.Point != nil {
		pointFields := []any{
			pe.Point.Link.ID, pe.Point.Dist, boolByte(pe.Point.NonPerp), pe.Point.RefDist,
		}
		for _, f := range pointFields {
			if err := binary.Write(w, binary.LittleEndian, f); err != nil {
				return err
			}
		}
	}
	linkIDs := make([]int64, len(pe.RouteInfo))
	for i, l := range pe.RouteInfo {
		linkIDs[i] = l.ID
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(linkIDs))); err != nil {
		return err
	}
	for _, id := range linkIDs {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
	}
	return nil
}

// Read deserializes the shapes previously written by Write. resolver
// supplies the *graph.Link pointers a PathEnd's Point and RouteInfo
// refer to; a link id absent from resolver is dropped from RouteInfo
// and leaves Point nil, rather than failing the whole read — a stale
// dump read against a rebuilt network should degrade, not crash.
func Read(path string, resolver LinkResolver) (map[string][]*pathengine.PathEnd, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	cr := &crc32Reader{r: f, hash: crc32.NewIEEE()}

	var hdr fileHeader
	if err := binary.Read(cr, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumShapes > maxShapes {
		return nil, fmt.Errorf("NumShapes %d exceeds limit %d", hdr.NumShapes, maxShapes)
	}

	// PathEnds serialize the domain link id, not the process-unique uid,
	// so a dump survives a network rebuild that reissues uids. Index the
	// resolver's links by id for the lookups below.
	links := make(map[int64]*graph.Link, len(resolver.Links()))
	for _, l := range resolver.Links() {
		links[l.ID] = l
	}
	result := make(map[string][]*pathengine.PathEnd, hdr.NumShapes)
	for i := uint32(0); i < hdr.NumShapes; i++ {
		shapeID, ends, err := readShape(cr, links)
		if err != nil {
			return nil, fmt.Errorf("read shape %d: %w", i, err)
		}
		result[shapeID] = ends
	}

	expectedCRC := cr.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}
	return result, nil
}

func readShape(r io.Reader, links map[int64]*graph.Link) (string, []*pathengine.PathEnd, error) {
	shapeID, err := readString(r)
	if err != nil {
		return "", nil, err
	}
	var numEnds uint32
	if err := binary.Read(r, binary.LittleEndian, &numEnds); err != nil {
		return "", nil, err
	}
	if numEnds > maxEnds {
		return "", nil, fmt.Errorf("NumEnds %d exceeds limit %d", numEnds, maxEnds)
	}
	ends := make([]*pathengine.PathEnd, numEnds)
	var prev *pathengine.PathEnd
	for i := range ends {
		pe, err := readPathEnd(r, links)
		if err != nil {
			return "", nil, err
		}
		pe.Prev = prev
		prev = pe
		ends[i] = pe
	}
	return shapeID, ends, nil
}

func readPathEnd(r io.Reader, links map[int64]*graph.Link) (*pathengine.PathEnd, error) {
	pe := &pathengine.PathEnd{}
	var seq int32
	var restart, hasPoint byte
	fields := []any{
		&seq,
		&pe.Sample.Lat, &pe.Sample.Lon, &pe.Sample.X, &pe.Sample.Y,
		&pe.TotalDist, &pe.TotalCost,
		&restart, &hasPoint,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	pe.Sample.Seq = int(seq)
	pe.Restart = restart != 0

	shapeID, err := readString(r)
	if err != nil {
		return nil, err
	}
	pe.Sample.ShapeID = shapeID

	if hasPoint != 0 {
		var linkID int64
		var dist, refDist float64
		var nonPerp byte
		if err := binary.Read(r, binary.LittleEndian, &linkID); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &dist); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &nonPerp); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &refDist); err != nil {
			return nil, err
		}
		if link, ok := links[linkID]; ok {
			pe.Point = graph.NewPointOnLink(link, dist, nonPerp != 0, refDist)
		}
	}

	var numLinks uint32
	if err := binary.Read(r, binary.LittleEndian, &numLinks); err != nil {
		return nil, err
	}
	for i := uint32(0); i < numLinks; i++ {
		var linkID int64
		if err := binary.Read(r, binary.LittleEndian, &linkID); err != nil {
			return nil, err
		}
		if link, ok := links[linkID]; ok {
			pe.RouteInfo = append(pe.RouteInfo, link)
		}
	}
	return pe, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
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

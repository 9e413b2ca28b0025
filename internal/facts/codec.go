package facts

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"
)

// writeString writes s as a length-prefixed UTF-16BE string: a uint32 count
// of UTF-16 code units, followed by that many big-endian uint16 code units.
// UTF-16 is chosen over UTF-8 for cross-language stability with the
// semantic-index worker (§4.3); any fixed, bijective encoding would satisfy
// the contract, this is simply the one this implementation commits to.
func writeString(w io.Writer, s string) error {
	units := utf16.Encode([]rune(s))
	if err := binary.Write(w, binary.BigEndian, uint32(len(units))); err != nil {
		return fmt.Errorf("write string length: %w", err)
	}
	for _, u := range units {
		if err := binary.Write(w, binary.BigEndian, u); err != nil {
			return fmt.Errorf("write string code unit: %w", err)
		}
	}
	return nil
}

// readString is the inverse of writeString.
func readString(r io.Reader) (string, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	units := make([]uint16, count)
	for i := range units {
		if err := binary.Read(r, binary.BigEndian, &units[i]); err != nil {
			return "", fmt.Errorf("read string code unit %d: %w", i, err)
		}
	}
	return string(utf16.Decode(units)), nil
}

func writeInt64(w io.Writer, v int64) error {
	if err := binary.Write(w, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write int64: %w", err)
	}
	return nil
}

func readInt64(r io.Reader) (int64, error) {
	var v int64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read int64: %w", err)
	}
	return v, nil
}

func writeInt32(w io.Writer, v int32) error {
	if err := binary.Write(w, binary.BigEndian, v); err != nil {
		return fmt.Errorf("write int32: %w", err)
	}
	return nil
}

func readInt32(r io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, fmt.Errorf("read int32: %w", err)
	}
	return v, nil
}

func writeBool(w io.Writer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	if err := binary.Write(w, binary.BigEndian, b); err != nil {
		return fmt.Errorf("write bool: %w", err)
	}
	return nil
}

func readBool(r io.Reader) (bool, error) {
	var b byte
	if err := binary.Read(r, binary.BigEndian, &b); err != nil {
		return false, fmt.Errorf("read bool: %w", err)
	}
	return b != 0, nil
}

func writeLocation(w io.Writer, l Location) error {
	if err := writeString(w, l.File); err != nil {
		return err
	}
	if err := writeInt32(w, int32(l.Line)); err != nil {
		return err
	}
	return writeInt32(w, int32(l.Col))
}

func readLocation(r io.Reader) (Location, error) {
	var l Location
	var err error
	if l.File, err = readString(r); err != nil {
		return l, err
	}
	line, err := readInt32(r)
	if err != nil {
		return l, err
	}
	col, err := readInt32(r)
	if err != nil {
		return l, err
	}
	l.Line, l.Col = int(line), int(col)
	return l, nil
}

func writeRange(w io.Writer, rg SourceRange) error {
	if err := writeString(w, rg.File); err != nil {
		return err
	}
	for _, v := range []int{rg.Line, rg.Col, rg.EndLine, rg.EndCol} {
		if err := writeInt32(w, int32(v)); err != nil {
			return err
		}
	}
	return nil
}

func readRange(r io.Reader) (SourceRange, error) {
	var rg SourceRange
	var err error
	if rg.File, err = readString(r); err != nil {
		return rg, err
	}
	vals := make([]int32, 4)
	for i := range vals {
		if vals[i], err = readInt32(r); err != nil {
			return rg, err
		}
	}
	rg.Line, rg.Col, rg.EndLine, rg.EndCol = int(vals[0]), int(vals[1]), int(vals[2]), int(vals[3])
	return rg, nil
}

// WriteTo serializes c as: sourceFile, workingDir, command, argc, args...,
// lastIndexedEpochSeconds — fields in declaration order, per §4.3.
func (c CommandInfo) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	for _, s := range []string{c.SourceFile, c.WorkingDir, c.Command} {
		if err := writeString(cw, s); err != nil {
			return cw.n, err
		}
	}
	if err := writeInt32(cw, int32(len(c.Args))); err != nil {
		return cw.n, err
	}
	for _, a := range c.Args {
		if err := writeString(cw, a); err != nil {
			return cw.n, err
		}
	}
	if err := writeInt64(cw, c.LastIndexedEpochSeconds); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// ReadCommandInfo deserializes a CommandInfo, the inverse of WriteTo.
func ReadCommandInfo(r io.Reader) (CommandInfo, error) {
	var c CommandInfo
	var err error
	if c.SourceFile, err = readString(r); err != nil {
		return c, err
	}
	if c.WorkingDir, err = readString(r); err != nil {
		return c, err
	}
	if c.Command, err = readString(r); err != nil {
		return c, err
	}
	argc, err := readInt32(r)
	if err != nil {
		return c, err
	}
	c.Args = make([]string, argc)
	for i := range c.Args {
		if c.Args[i], err = readString(r); err != nil {
			return c, err
		}
	}
	if c.LastIndexedEpochSeconds, err = readInt64(r); err != nil {
		return c, err
	}
	return c, nil
}

// WriteTo serializes an Inclusion: includer, included, direct.
func (inc Inclusion) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeString(cw, inc.Includer); err != nil {
		return cw.n, err
	}
	if err := writeString(cw, inc.Included); err != nil {
		return cw.n, err
	}
	return cw.n, writeBool(cw, inc.Direct)
}

// ReadInclusion is the inverse of Inclusion.WriteTo.
func ReadInclusion(r io.Reader) (Inclusion, error) {
	var inc Inclusion
	var err error
	if inc.Includer, err = readString(r); err != nil {
		return inc, err
	}
	if inc.Included, err = readString(r); err != nil {
		return inc, err
	}
	inc.Direct, err = readBool(r)
	return inc, err
}

// WriteTo serializes a DefInfo: usr, name, location, kind.
func (d DefInfo) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeString(cw, d.USR); err != nil {
		return cw.n, err
	}
	if err := writeString(cw, d.Name); err != nil {
		return cw.n, err
	}
	if err := writeLocation(cw, d.Location); err != nil {
		return cw.n, err
	}
	return cw.n, writeString(cw, string(d.Kind))
}

// ReadDefInfo is the inverse of DefInfo.WriteTo.
func ReadDefInfo(r io.Reader) (DefInfo, error) {
	var d DefInfo
	var err error
	if d.USR, err = readString(r); err != nil {
		return d, err
	}
	if d.Name, err = readString(r); err != nil {
		return d, err
	}
	if d.Location, err = readLocation(r); err != nil {
		return d, err
	}
	kind, err := readString(r)
	d.Kind = DefKind(kind)
	return d, err
}

// WriteTo serializes an Override edge: definingUSR, overriddenUSR.
func (o Override) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeString(cw, o.DefiningUSR); err != nil {
		return cw.n, err
	}
	return cw.n, writeString(cw, o.OverriddenUSR)
}

// ReadOverride is the inverse of Override.WriteTo.
func ReadOverride(r io.Reader) (Override, error) {
	var o Override
	var err error
	if o.DefiningUSR, err = readString(r); err != nil {
		return o, err
	}
	o.OverriddenUSR, err = readString(r)
	return o, err
}

// WriteTo serializes a CallEdge: callerUSR, calleeUSR.
func (c CallEdge) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeString(cw, c.CallerUSR); err != nil {
		return cw.n, err
	}
	return cw.n, writeString(cw, c.CalleeUSR)
}

// ReadCallEdge is the inverse of CallEdge.WriteTo.
func ReadCallEdge(r io.Reader) (CallEdge, error) {
	var c CallEdge
	var err error
	if c.CallerUSR, err = readString(r); err != nil {
		return c, err
	}
	c.CalleeUSR, err = readString(r)
	return c, err
}

// WriteTo serializes a Reference: range, targetUSR.
func (ref Reference) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := writeRange(cw, ref.Range); err != nil {
		return cw.n, err
	}
	return cw.n, writeString(cw, ref.TargetUSR)
}

// ReadReference is the inverse of Reference.WriteTo.
func ReadReference(r io.Reader) (Reference, error) {
	var ref Reference
	var err error
	if ref.Range, err = readRange(r); err != nil {
		return ref, err
	}
	ref.TargetUSR, err = readString(r)
	return ref, err
}

// countingWriter tracks bytes written so WriteTo implementations can satisfy
// io.WriterTo's (int64, error) signature without threading a counter by hand
// through every field write.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

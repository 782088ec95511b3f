// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

import (
	"bufio"
	"io"
	"unsafe"

	"github.com/alecthomas/binary"
	"github.com/cockroachdb/errors"
)

// record is the serialized form of a key and its count.
type record struct {
	Hi, Lo uint64
	Count  uint64
}

// bytes per encoded record, the fields are fixed width
const recordSize = int(unsafe.Sizeof(record{}))

// Encoder writes key, count pairs to a stream in a fixed width binary form.
type Encoder struct {
	w   *bufio.Writer
	enc *binary.Encoder
	n   uint64
}

// NewEncoder returns an Encoder writing to w. Call Flush when done.
func NewEncoder(w io.Writer) *Encoder {
	bw := bufio.NewWriter(w)
	return &Encoder{w: bw, enc: binary.NewEncoder(bw)}
}

// Encode writes one pair. Its signature matches the emit function of Drain.
func (e *Encoder) Encode(key Key, count uint64) error {
	r := record{Hi: key.Hi, Lo: key.Lo, Count: count}
	if err := e.enc.Encode(&r); err != nil {
		return errors.Wrapf(err, "encode record %d", e.n)
	}
	e.n++
	return nil
}

// Count returns the number of pairs written.
func (e *Encoder) Count() uint64 {
	return e.n
}

// Flush writes any buffered data to the underlying writer.
func (e *Encoder) Flush() error {
	return errors.Wrap(e.w.Flush(), "flush")
}

// Decoder reads pairs written by an Encoder.
type Decoder struct {
	r   *bufio.Reader
	buf [recordSize]byte
	n   uint64
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next pair. It returns io.EOF when the stream ends cleanly, between
// records. A stream that ends inside a record is an error.
func (d *Decoder) Decode() (Key, uint64, error) {
	if _, err := io.ReadFull(d.r, d.buf[:]); err != nil {
		if err == io.EOF {
			return Key{}, 0, io.EOF
		}
		return Key{}, 0, errors.Wrapf(err, "decode record %d", d.n)
	}
	var r record
	if err := binary.Unmarshal(d.buf[:], &r); err != nil {
		return Key{}, 0, errors.Wrapf(err, "decode record %d", d.n)
	}
	d.n++
	return Key{Lo: r.Lo, Hi: r.Hi}, r.Count, nil
}

// Load inserts count occurrences of every pair read from d into t, returning the
// number of pairs read.
func (t *Table) Load(d *Decoder) (uint64, error) {
	var n uint64
	for {
		k, c, err := d.Decode()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		t.InsertN(k, c)
		n++
	}
}

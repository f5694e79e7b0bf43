package pool

import (
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// record is one line of the stream. A line carrying "dropped" is a trailer
// reporting samples the producer discarded before they reached the stream.
type record struct {
	ProducerID  int     `json:"pid"`
	WorkerIndex int     `json:"idx"`
	Value       int     `json:"val"`
	Timestamp   float64 `json:"ts"`
	Dropped     *uint64 `json:"dropped,omitempty"`
}

type trailer struct {
	Dropped uint64 `json:"dropped"`
}

// Encoder writes samples as newline-delimited JSON.
type Encoder struct {
	enc sonic.Encoder
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: sonic.ConfigStd.NewEncoder(w)}
}

// Encode writes one sample followed by a newline.
func (e *Encoder) Encode(s Sample) error {
	if err := e.enc.Encode(s); err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	return nil
}

// EncodeDropped writes a trailer reporting n samples dropped upstream.
func (e *Encoder) EncodeDropped(n uint64) error {
	if err := e.enc.Encode(trailer{Dropped: n}); err != nil {
		return fmt.Errorf("encode trailer: %w", err)
	}
	return nil
}

// Decoder reads samples written by an Encoder.
type Decoder struct {
	dec     sonic.Decoder
	dropped uint64
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: sonic.ConfigStd.NewDecoder(r)}
}

// Decode reads the next sample, consuming any trailers on the way. It returns
// io.EOF once the stream ends cleanly.
func (d *Decoder) Decode() (Sample, error) {
	for {
		var r record
		if err := d.dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return Sample{}, io.EOF
			}
			return Sample{}, fmt.Errorf("decode sample: %w", err)
		}
		if r.Dropped != nil {
			d.dropped += *r.Dropped
			continue
		}

		s := Sample{ProducerID: r.ProducerID, WorkerIndex: r.WorkerIndex, Value: r.Value, Timestamp: r.Timestamp}
		if !s.Valid() {
			return Sample{}, fmt.Errorf("decode sample: value %d out of range", s.Value)
		}
		return s, nil
	}
}

// Dropped returns the total reported by the trailers read so far.
func (d *Decoder) Dropped() uint64 {
	return d.dropped
}

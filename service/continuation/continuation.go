// Package continuation encodes the combined cursor carried between cross-chain list calls.
// The serialized form is opaque to clients.
package continuation

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/mikeydub/go-union/service/persist"
)

// Completed marks a chain that has no more results
const Completed = "COMPLETED"

// MaxLength is the longest serialized continuation accepted from clients
const MaxLength = 8192

var ErrMalformed = errors.New("malformed continuation")

// Combined maps each chain to its native cursor or Completed.
// A chain without an entry starts from the beginning.
type Combined map[persist.Chain]string

// Get returns the chain-native cursor to resume from, and false if the chain is completed
func (c Combined) Get(chain persist.Chain) (cursor string, ok bool) {
	cursor = c[chain]
	if cursor == Completed {
		return "", false
	}
	return cursor, true
}

func (c Combined) IsCompleted(chain persist.Chain) bool {
	return c[chain] == Completed
}

// AllCompleted reports whether every given chain is exhausted. An empty chain set is completed.
func (c Combined) AllCompleted(chains []persist.Chain) bool {
	for _, chain := range chains {
		if !c.IsCompleted(chain) {
			return false
		}
	}
	return true
}

// Set records the next cursor for a chain. An empty next cursor means the chain is exhausted.
func (c Combined) Set(chain persist.Chain, next string) {
	if next == "" {
		next = Completed
	}
	c[chain] = next
}

func (c Combined) Clone() Combined {
	out := make(Combined, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Parse decodes a serialized continuation. Empty or malformed input yields an empty
// continuation, which restarts every chain from the beginning.
func Parse(s string) Combined {
	c, err := Decode(s)
	if err != nil {
		return Combined{}
	}
	return c
}

// Decode is Parse but reports why the input could not be decoded
func Decode(s string) (Combined, error) {
	if s == "" {
		return Combined{}, nil
	}

	d, err := newDecoder(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	n, err := d.readUInt64()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if n > uint64(len(persist.AllChains)) {
		return nil, fmt.Errorf("%w: too many chains (%d)", ErrMalformed, n)
	}

	c := make(Combined, n)
	for i := uint64(0); i < n; i++ {
		name, err := d.readString()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
		chain := persist.Chain(name)
		if !chain.IsValid() {
			return nil, fmt.Errorf("%w: unknown chain '%s'", ErrMalformed, name)
		}
		if _, dup := c[chain]; dup {
			return nil, fmt.Errorf("%w: duplicate chain '%s'", ErrMalformed, name)
		}
		cursor, err := d.readString()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
		c[chain] = cursor
	}

	if d.reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, d.reader.Len())
	}

	return c, nil
}

// Serialize encodes the continuation. Chains are written in sorted order so equal
// continuations always serialize identically. An empty continuation serializes to "".
func Serialize(c Combined) string {
	if len(c) == 0 {
		return ""
	}

	chains := make([]persist.Chain, 0, len(c))
	for chain := range c {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	e := encoder{}
	e.appendUInt64(uint64(len(chains)))
	for _, chain := range chains {
		e.appendString(chain.String())
		e.appendString(c[chain])
	}
	return e.asBase64()
}

type encoder struct {
	buffer []byte
}

func (e *encoder) asBase64() string {
	return base64.RawURLEncoding.EncodeToString(e.buffer)
}

func (e *encoder) appendString(str string) {
	// Write the string's length first
	e.appendUInt64(uint64(len(str)))
	e.buffer = append(e.buffer, str...)
}

// appendUInt64 uses a variable-length encoding (smaller numbers require fewer bytes)
func (e *encoder) appendUInt64(i uint64) {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, i)
	e.buffer = append(e.buffer, buf[:n]...)
}

type decoder struct {
	reader *bytes.Reader
}

func newDecoder(s string) (decoder, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return decoder{}, err
	}
	return decoder{reader: bytes.NewReader(decoded)}, nil
}

func (d *decoder) readUInt64() (uint64, error) {
	return binary.ReadUvarint(d.reader)
}

// readString reads a length-prefixed string and advances the stream
func (d *decoder) readString() (string, error) {
	strLen, err := d.readUInt64()
	if err != nil {
		return "", err
	}
	if strLen > uint64(d.reader.Len()) {
		return "", fmt.Errorf("error reading string: expected %d bytes, but only %d remain", strLen, d.reader.Len())
	}

	strBytes := make([]byte, strLen)
	if _, err := io.ReadFull(d.reader, strBytes); err != nil {
		return "", err
	}
	return string(strBytes), nil
}

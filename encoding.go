package tagdb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/tagdb/jsonval"
)

// Row envelopes are stored as msgpack with sorted map keys; the document or
// value itself stays JSON text inside the envelope.

func encodeRow(row any) []byte {
	var bb bytesBuilder
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	enc.SetSortMapKeys(true)
	err := enc.Encode(row)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", row, err))
	}
	return bb.Buf
}

func decodeRow(buf []byte, row any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(row)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, 0, err, "failed to decode msgpack into %T", row)
	}
	return nil
}

// encodeValue renders v as the JSON text stored in the value column.
func encodeValue(v jsonval.Value) (string, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("cannot encode value: %w", err)
	}
	return string(raw), nil
}

func decodeValue(raw string) (jsonval.Value, error) {
	v, err := jsonval.Parse([]byte(raw))
	if err != nil {
		return jsonval.Value{}, dataErrf([]byte(raw), 0, err, "stored value is not valid JSON")
	}
	return v, nil
}

// Document ids are keyed by their 8-byte big-endian form so that byte order
// matches numeric order.
const idKeyLen = 8

func appendIDKey(buf []byte, id int64) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

func idKey(id int64) []byte {
	return appendIDKey(make([]byte, 0, idKeyLen), id)
}

func decodeIDKey(k []byte) (int64, error) {
	if len(k) != idKeyLen {
		return 0, dataErrf(k, 0, nil, "invalid document key length %d", len(k))
	}
	return int64(binary.BigEndian.Uint64(k)), nil
}

// Tag index keys are the tag bytes, a zero byte and the document id key.
func tagPrefix(tag string) []byte {
	buf := make([]byte, 0, len(tag)+1+idKeyLen)
	buf = append(buf, tag...)
	return append(buf, 0)
}

func tagKey(tag string, id int64) []byte {
	return appendIDKey(tagPrefix(tag), id)
}

// tagKeyID extracts the document id from a tag index key under prefix. Keys of
// longer tags that merely share the prefix are rejected.
func tagKeyID(k, prefix []byte) (int64, bool) {
	if len(k) != len(prefix)+idKeyLen || !bytes.HasPrefix(k, prefix) {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(k[len(prefix):])), true
}

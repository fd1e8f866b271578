package cabinet

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// DocumentIDField is the reserved body field carrying the document key.
const DocumentIDField = "_id"

func encodeBody(body map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(body)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("encoding document body: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBody(raw []byte) (map[string]any, error) {
	var r bytes.Reader
	r.Reset(raw)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	var body map[string]any
	err := dec.Decode(&body)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("decoding document body: %w", err)
	}
	return body, nil
}

// documentID extracts the reserved identifier field from a body.
func documentID(body map[string]any) (string, bool) {
	v, found := body[DocumentIDField]
	if !found {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

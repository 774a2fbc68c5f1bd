package transport

import (
	"encoding/json"
	"fmt"
	"io"
)

func init() {
	Register("json", newJSONCodec)
}

// jsonCodec frames messages as newline-delimited JSON objects. Numbers decode
// as json.Number so ports survive the round trip without float truncation.
type jsonCodec struct {
	enc *json.Encoder
	dec *json.Decoder
}

func newJSONCodec(rw io.ReadWriter) Codec {
	dec := json.NewDecoder(rw)
	dec.UseNumber()
	return &jsonCodec{enc: json.NewEncoder(rw), dec: dec}
}

func (c *jsonCodec) Encode(msg Message) error {
	if err := c.enc.Encode(msg); err != nil {
		return fmt.Errorf("encoding json message: %w", err)
	}
	return nil
}

func (c *jsonCodec) Decode() (Message, error) {
	var msg Message
	if err := c.dec.Decode(&msg); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decoding json message: %w", err)
	}
	return msg, nil
}

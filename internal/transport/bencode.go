package transport

import (
	"bufio"
	"fmt"
	"io"

	bencode "github.com/jackpal/bencode-go"
)

func init() {
	Register("bencode", newBencodeCodec)
}

// bencodeCodec is the baseline framed-binary codec. Messages are bencoded
// dictionaries; integers decode as int64 and lists as []any.
type bencodeCodec struct {
	r *bufio.Reader
	w io.Writer
}

func newBencodeCodec(rw io.ReadWriter) Codec {
	return &bencodeCodec{r: bufio.NewReader(rw), w: rw}
}

func (c *bencodeCodec) Encode(msg Message) error {
	if err := bencode.Marshal(c.w, msg); err != nil {
		return fmt.Errorf("encoding bencode message: %w", err)
	}
	return nil
}

func (c *bencodeCodec) Decode() (Message, error) {
	v, err := bencode.Decode(c.r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decoding bencode message: %w", err)
	}
	msg, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("bencode message is %T, want dictionary", v)
	}
	return msg, nil
}

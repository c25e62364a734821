package serializer

import (
	"encoding/json"

	"github.com/kbirk/wamp/pkg/messages"
)

type JSONSerializer struct{}

func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

func (s *JSONSerializer) Serialize(msg messages.Message) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg.ToList()); err != nil {
		return nil, err
	}
	// drop the trailing newline written by the encoder
	out := make([]byte, buf.Len()-1)
	copy(out, buf.Bytes())
	return out, nil
}

func (s *JSONSerializer) Deserialize(data []byte) (messages.Message, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, decodeError(err)
	}
	return messages.Parse(raw)
}

func (s *JSONSerializer) Subprotocol() string { return JSONSubprotocol }

func (s *JSONSerializer) RawSocketID() byte { return JSONRawSocketID }

func (s *JSONSerializer) Binary() bool { return false }

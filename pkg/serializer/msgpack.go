package serializer

import (
	"github.com/kbirk/wamp/pkg/messages"
	"github.com/vmihailenco/msgpack/v5"
)

type MsgPackSerializer struct{}

func NewMsgPackSerializer() *MsgPackSerializer {
	return &MsgPackSerializer{}
}

func (s *MsgPackSerializer) Serialize(msg messages.Message) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	enc := msgpack.NewEncoder(buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(msg.ToList()); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (s *MsgPackSerializer) Deserialize(data []byte) (messages.Message, error) {
	var raw []any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, decodeError(err)
	}
	return messages.Parse(raw)
}

func (s *MsgPackSerializer) Subprotocol() string { return MsgPackSubprotocol }

func (s *MsgPackSerializer) RawSocketID() byte { return MsgPackRawSocketID }

func (s *MsgPackSerializer) Binary() bool { return true }

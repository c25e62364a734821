package serializer

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/kbirk/wamp/pkg/messages"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	cborEncMode, err = cbor.EncOptions{}.EncMode()
	if err != nil {
		panic(err)
	}
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

type CBORSerializer struct{}

func NewCBORSerializer() *CBORSerializer {
	return &CBORSerializer{}
}

func (s *CBORSerializer) Serialize(msg messages.Message) ([]byte, error) {
	return cborEncMode.Marshal(msg.ToList())
}

func (s *CBORSerializer) Deserialize(data []byte) (messages.Message, error) {
	var raw []any
	if err := cborDecMode.Unmarshal(data, &raw); err != nil {
		return nil, decodeError(err)
	}
	return messages.Parse(raw)
}

func (s *CBORSerializer) Subprotocol() string { return CBORSubprotocol }

func (s *CBORSerializer) RawSocketID() byte { return CBORRawSocketID }

func (s *CBORSerializer) Binary() bool { return true }

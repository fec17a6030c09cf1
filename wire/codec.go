package wire

import "fmt"

// Codec frames a batch of messages. Decode skips message kinds it does not know.
type Codec interface {
	Name() string
	Encode(msgs []Message) ([]byte, error)
	Decode(b []byte) ([]Message, error)
}

// CodecByName returns the codec registered under name: "json" or "cbor".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "json", "":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

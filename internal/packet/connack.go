package packet

import (
	"bytes"
	"io"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/xerror"
)

// Connack represents the MQTT CONNACK packet.
type Connack struct {
	FixedHeader    *FixedHeader
	SessionPresent bool
	Code           code.Code
}

func (c *Connack) Type() Type { return CONNACK }

func (c *Connack) Encode(w io.Writer) error {
	buf := &bytes.Buffer{}
	var flags byte
	if c.SessionPresent {
		flags = 0x01
	}
	buf.WriteByte(flags)
	buf.WriteByte(byte(c.Code))
	fh := c.FixedHeader
	if fh == nil {
		fh = &FixedHeader{PacketType: CONNACK, Flags: FixedHeaderFlagReserved}
	}
	return encode(fh, buf, w)
}

// NewConnack decodes a CONNACK packet given its fixed header.
func NewConnack(fixedHeader *FixedHeader, r io.Reader) (*Connack, error) {
	if fixedHeader.Flags != FixedHeaderFlagReserved {
		return nil, xerror.ErrMalformed
	}
	rest := make([]byte, fixedHeader.RemainLength)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	if len(rest) < 2 {
		return nil, xerror.ErrMalformed
	}
	return &Connack{
		FixedHeader:    fixedHeader,
		SessionPresent: rest[0]&0x01 != 0,
		Code:           code.Code(rest[1]),
	}, nil
}

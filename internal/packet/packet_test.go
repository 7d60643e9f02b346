package packet

import (
	"bytes"
	"testing"

	"github.com/lumenmq/lighthouse/internal/code"
	"github.com/lumenmq/lighthouse/internal/xerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxRemainingLength}
	for _, n := range cases {
		var buf bytes.Buffer
		buf.Write(encodeVarInt(nil, n))
		assert.True(t, buf.Len() >= 1 && buf.Len() <= 4)
		got, err := decodeVarInt(&buf)
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestVarIntTooManyContinuationBytes(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})
	_, err := decodeVarInt(buf)
	assert.Error(t, err)
}

func TestConnectRoundTrip(t *testing.T) {
	c := &Connect{
		FixedHeader:   &FixedHeader{PacketType: CONNECT, Flags: FixedHeaderFlagReserved},
		Version:       V311,
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: byte(V311),
		ConnectFlags:  ConnectFlags{CleanSession: true, UsernameFlag: true, PasswordFlag: true},
		KeepAlive:     60,
		ClientId:      []byte("client-1"),
		Username:      []byte("alice"),
		Password:      []byte("secret"),
	}
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	decoded, ok := got.(*Connect)
	require.True(t, ok)
	assert.Equal(t, c.ClientId, decoded.ClientId)
	assert.Equal(t, c.Username, decoded.Username)
	assert.Equal(t, c.Password, decoded.Password)
	assert.True(t, decoded.CleanSession)
	assert.EqualValues(t, 60, decoded.KeepAlive)
}

// An empty client_id with clean_session=false still decodes: CONNACK
// code.IdentifierRejected is the caller's job (broker/handshake.go), not
// a decode failure, so the broker can answer with a CONNACK before
// closing instead of dropping the socket silently.
func TestConnectEmptyClientIdStillDecodes(t *testing.T) {
	c := &Connect{
		FixedHeader:   &FixedHeader{PacketType: CONNECT, Flags: FixedHeaderFlagReserved},
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: byte(V311),
		ConnectFlags:  ConnectFlags{CleanSession: false},
		ClientId:      nil,
	}
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))
	got, err := Decode(&buf)
	require.NoError(t, err)
	decoded := got.(*Connect)
	assert.Empty(t, decoded.ClientId)
	assert.False(t, decoded.CleanSession)
}

// An unrecognized protocol level still decodes for the same reason:
// the caller answers with CONNACK code.UnacceptableProtocolVersion.
func TestConnectUnacceptableVersionStillDecodes(t *testing.T) {
	c := &Connect{
		FixedHeader:   &FixedHeader{PacketType: CONNECT, Flags: FixedHeaderFlagReserved},
		ProtocolName:  []byte("MQTT"),
		ProtocolLevel: 9,
		ConnectFlags:  ConnectFlags{CleanSession: true},
		ClientId:      []byte("client-1"),
	}
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))
	got, err := Decode(&buf)
	require.NoError(t, err)
	decoded := got.(*Connect)
	assert.False(t, IsAcceptableVersion(decoded.Version))
}

func TestPublishRoundTripQoS1(t *testing.T) {
	p := &Publish{
		Dup: false, QoS: 1, Retain: true,
		Topic: []byte("a/b"), PacketId: 42,
		Payload: []byte("hello"),
	}
	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))
	got, err := Decode(&buf)
	require.NoError(t, err)
	decoded := got.(*Publish)
	assert.Equal(t, p.Topic, decoded.Topic)
	assert.Equal(t, p.Payload, decoded.Payload)
	assert.EqualValues(t, 42, decoded.PacketId)
	assert.True(t, decoded.Retain)
}

func TestPublishQoS0HasNoPacketId(t *testing.T) {
	p := &Publish{QoS: 0, Topic: []byte("t"), Payload: []byte("x")}
	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))
	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.(*Publish).PacketId)
}

func TestPublishRejectsWildcardTopic(t *testing.T) {
	var buf bytes.Buffer
	// Build a raw PUBLISH with a wildcard topic by hand since the encoder
	// itself has no caller that would ever produce one.
	body := &bytes.Buffer{}
	tb, _, _ := UTF8EncodedStrings([]byte("a/+/b"))
	body.Write(tb)
	body.Write([]byte("payload"))
	require.NoError(t, encode(&FixedHeader{PacketType: PUBLISH, Flags: 0}, body, &buf))
	_, err := Decode(&buf)
	assert.ErrorIs(t, err, xerror.ErrProtocolViolation)
}

func TestPubrelFixedFlags(t *testing.T) {
	p := &Pubrel{PacketId: 7}
	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))
	fh, err := DecodeFixedHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), fh.Flags)
}

func TestSubscribeRoundTrip(t *testing.T) {
	s := &Subscribe{
		PacketId: 10,
		Filters: []TopicFilter{
			{Filter: []byte("a/b"), QoS: 1},
			{Filter: []byte("c/#"), QoS: 2},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))
	got, err := Decode(&buf)
	require.NoError(t, err)
	decoded := got.(*Subscribe)
	require.Len(t, decoded.Filters, 2)
	assert.Equal(t, "a/b", string(decoded.Filters[0].Filter))
	assert.EqualValues(t, 2, decoded.Filters[1].QoS)
}

func TestSubackRoundTrip(t *testing.T) {
	s := &Suback{PacketId: 5, Codes: []code.SubackCode{code.SubackQoS0, code.SubackFailure, code.SubackQoS2}}
	var buf bytes.Buffer
	require.NoError(t, s.Encode(&buf))
	got, err := Decode(&buf)
	require.NoError(t, err)
	decoded := got.(*Suback)
	assert.Equal(t, s.Codes, decoded.Codes)
}

func TestPingPacketsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Pingreq{}.Encode(&buf))
	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, PINGREQ, got.Type())

	buf.Reset()
	require.NoError(t, Pingresp{}.Encode(&buf))
	got, err = Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, PINGRESP, got.Type())
}

func TestReservedTypesForbidden(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x00) // type 0, flags 0
	buf.WriteByte(0x00) // remaining length 0
	_, err := Decode(&buf)
	assert.Error(t, err)
}

package packet

import (
	"bytes"
	"encoding/binary"

	"github.com/taktv6/tflow2/convert"
)

// EncodeKeepaliveMsg encodes a KEEPALIVE message: header only.
func EncodeKeepaliveMsg() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderLen))
	encodeHeader(buf, HeaderLen, KeepaliveMsg)
	return buf.Bytes()
}

// EncodeNotificationMsg encodes a NOTIFICATION message.
func EncodeNotificationMsg(msg *BGPNotification) []byte {
	length := uint16(HeaderLen + 2 + len(msg.Data))
	buf := bytes.NewBuffer(make([]byte, 0, length))
	encodeHeader(buf, length, NotificationMsg)

	buf.WriteByte(msg.ErrorCode)
	buf.WriteByte(msg.ErrorSubcode)
	buf.Write(msg.Data)

	return buf.Bytes()
}

// EncodeOpenMsg encodes an OPEN message. OptParams is written
// verbatim; OptParmLen is derived from its length, not trusted from
// the caller.
func EncodeOpenMsg(msg *BGPOpen) []byte {
	optLen := len(msg.OptParams)
	length := uint16(HeaderLen + 10 + optLen)
	buf := bytes.NewBuffer(make([]byte, 0, length))
	encodeHeader(buf, length, OpenMsg)

	buf.WriteByte(msg.Version)
	buf.Write(convert.Uint16Byte(msg.ASN))
	buf.Write(convert.Uint16Byte(msg.HoldTime))
	buf.Write(convert.Uint32Byte(msg.BGPIdentifier))
	buf.WriteByte(uint8(optLen))
	buf.Write(msg.OptParams)

	return buf.Bytes()
}

// EncodeUpdateMsg encodes an UPDATE message. Path attributes are
// re-serialized from their flags/type/value rather than a raw blob,
// so a decoded-then-reencoded UPDATE round-trips.
func EncodeUpdateMsg(msg *BGPUpdate) ([]byte, error) {
	var body bytes.Buffer

	withdrawn := encodeNLRIs(msg.WithdrawnRoutes)
	if err := binary.Write(&body, binary.BigEndian, uint16(len(withdrawn))); err != nil {
		return nil, err
	}
	body.Write(withdrawn)

	attrs, err := encodePathAttrs(msg.PathAttributes)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&body, binary.BigEndian, uint16(len(attrs))); err != nil {
		return nil, err
	}
	body.Write(attrs)

	body.Write(encodeNLRIs(msg.NLRI))

	length := uint16(HeaderLen + body.Len())
	buf := bytes.NewBuffer(make([]byte, 0, length))
	encodeHeader(buf, length, UpdateMsg)
	buf.Write(body.Bytes())

	return buf.Bytes(), nil
}

func encodeNLRIs(nlris []NLRI) []byte {
	var buf bytes.Buffer
	for _, n := range nlris {
		buf.WriteByte(n.Pfxlen)
		buf.Write(n.Prefix[:wireLen(n.Pfxlen)])
	}
	return buf.Bytes()
}

func encodePathAttrs(attrs []PathAttribute) ([]byte, error) {
	var buf bytes.Buffer
	for _, pa := range attrs {
		value, err := encodeAttrValue(pa)
		if err != nil {
			return nil, err
		}

		var flags uint8
		if pa.Optional {
			flags |= 0x80
		}
		if pa.Transitive {
			flags |= 0x40
		}
		if pa.Partial {
			flags |= 0x20
		}
		extended := len(value) > 255
		if extended {
			flags |= 0x10
		}

		buf.WriteByte(flags)
		buf.WriteByte(pa.TypeCode)
		if extended {
			binary.Write(&buf, binary.BigEndian, uint16(len(value)))
		} else {
			buf.WriteByte(uint8(len(value)))
		}
		buf.Write(value)
	}
	return buf.Bytes(), nil
}

func encodeAttrValue(pa PathAttribute) ([]byte, error) {
	switch pa.TypeCode {
	case OriginAttr:
		o, _ := pa.Value.(Origin)
		return []byte{uint8(o)}, nil
	case ASPathAttr:
		path, _ := pa.Value.(ASPath)
		var buf bytes.Buffer
		for _, seg := range path {
			buf.WriteByte(seg.Type)
			buf.WriteByte(uint8(len(seg.ASNs)))
			for _, asn := range seg.ASNs {
				buf.Write(convert.Uint16Byte(asn))
			}
		}
		return buf.Bytes(), nil
	case NextHopAttr:
		addr, _ := pa.Value.([4]byte)
		return addr[:], nil
	case MEDAttr, LocalPrefAttr:
		v, _ := pa.Value.(uint32)
		return convert.Uint32Byte(v), nil
	case AtomicAggrAttr:
		return nil, nil
	case AggregatorAttr:
		agg, _ := pa.Value.(Aggregator)
		var buf bytes.Buffer
		buf.Write(convert.Uint16Byte(agg.ASN))
		buf.Write(agg.Addr[:])
		return buf.Bytes(), nil
	default:
		raw, _ := pa.Value.([]byte)
		return raw, nil
	}
}

func encodeHeader(buf *bytes.Buffer, length uint16, typ uint8) {
	for i := 0; i < MarkerLen; i++ {
		buf.WriteByte(0xff)
	}
	buf.Write(convert.Uint16Byte(length))
	buf.WriteByte(typ)
}

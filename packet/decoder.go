package packet

import (
	"encoding/binary"
	"fmt"
)

// Decode decodes one framed BGP message from the head of buf.
// It returns the decoded message and the number of bytes consumed
// (equal to the header's own Length field) on success.
//
// Three distinct outcomes, matching the contract in the session
// layer's spec: a *ErrPartialFrame when buf does not yet hold a
// complete message (the caller should read more and retry), a
// *BGPError for every protocol-level violation (the caller maps
// these onto FSM events 21/22/28), or a nil error with a fully
// decoded message.
func Decode(buf []byte, localID uint32, peerASN uint16) (*BGPMessage, int, error) {
	if len(buf) < HeaderLen {
		return nil, 0, &ErrPartialFrame{Expected: HeaderLen}
	}

	for i := 0; i < MarkerLen; i++ {
		if buf[i] != 0xff {
			return nil, 0, &BGPError{
				ErrorCode:    MessageHeaderError,
				ErrorSubCode: ConnectionNotSynchronised,
				Reason:       "marker is not all-ones",
			}
		}
	}

	length := binary.BigEndian.Uint16(buf[16:18])
	typ := buf[18]

	if length < MinLen || length > MaxLen {
		data := make([]byte, 2)
		binary.BigEndian.PutUint16(data, length)
		return nil, 0, &BGPError{
			ErrorCode:    MessageHeaderError,
			ErrorSubCode: BadMessageLength,
			Data:         data,
			Reason:       fmt.Sprintf("invalid length %d", length),
		}
	}

	if typ < OpenMsg || typ > KeepaliveMsg {
		return nil, 0, &BGPError{
			ErrorCode:    MessageHeaderError,
			ErrorSubCode: BadMessageType,
			Data:         []byte{typ},
			Reason:       fmt.Sprintf("invalid type %d", typ),
		}
	}

	if len(buf) < int(length) {
		return nil, 0, &ErrPartialFrame{Expected: int(length)}
	}

	body := buf[HeaderLen:length]

	var msgBody interface{}
	var err error

	switch typ {
	case OpenMsg:
		msgBody, err = decodeOpenMsg(body, localID, peerASN)
	case UpdateMsg:
		msgBody, err = decodeUpdateMsg(body)
	case NotificationMsg:
		msgBody, err = decodeNotificationMsg(body)
	case KeepaliveMsg:
		if length != HeaderLen {
			err = &BGPError{
				ErrorCode:    MessageHeaderError,
				ErrorSubCode: BadMessageLength,
				Reason:       "KEEPALIVE body must be empty",
			}
		}
	}
	if err != nil {
		return nil, 0, err
	}

	return &BGPMessage{
		Header: BGPHeader{Length: length, Type: typ},
		Body:   msgBody,
	}, int(length), nil
}

// openBodyMinLen is the minimum OPEN body size: version(1) + asn(2) +
// hold_time(2) + bgp_id(4) + opt_len(1) = 10, i.e. 29 bytes total
// including the 19-byte header: version@body[0], asn@body[1:3],
// hold_time@body[3:5], bgp_id@body[5:9], opt_len@body[9].
const openBodyMinLen = 10

func decodeOpenMsg(body []byte, localID uint32, peerASN uint16) (*BGPOpen, error) {
	if len(body) < openBodyMinLen {
		return nil, &BGPError{
			ErrorCode:    MessageHeaderError,
			ErrorSubCode: BadMessageLength,
			Reason:       "OPEN body too short",
		}
	}

	msg := &BGPOpen{
		Version:       body[0],
		ASN:           binary.BigEndian.Uint16(body[1:3]),
		HoldTime:      binary.BigEndian.Uint16(body[3:5]),
		BGPIdentifier: binary.BigEndian.Uint32(body[5:9]),
		OptParmLen:    body[9],
	}

	if int(msg.OptParmLen) > len(body)-openBodyMinLen {
		return nil, &BGPError{
			ErrorCode:    MessageHeaderError,
			ErrorSubCode: BadMessageLength,
			Reason:       "OPEN optional parameters overrun message",
		}
	}
	msg.OptParams = append([]byte(nil), body[openBodyMinLen:openBodyMinLen+int(msg.OptParmLen)]...)

	if msg.Version != BGP4Version {
		return nil, &BGPError{
			ErrorCode:    OpenMessageError,
			ErrorSubCode: UnsupportedVersionNumber,
			Reason:       fmt.Sprintf("unsupported version %d", msg.Version),
		}
	}
	if msg.ASN != peerASN {
		return nil, &BGPError{
			ErrorCode:    OpenMessageError,
			ErrorSubCode: BadPeerAS,
			Reason:       fmt.Sprintf("unexpected peer AS %d, want %d", msg.ASN, peerASN),
		}
	}
	if msg.BGPIdentifier == localID {
		return nil, &BGPError{
			ErrorCode:    OpenMessageError,
			ErrorSubCode: BadBGPIdentifier,
			Reason:       "peer advertised our own BGP identifier",
		}
	}
	if msg.HoldTime == 1 || msg.HoldTime == 2 {
		return nil, &BGPError{
			ErrorCode:    OpenMessageError,
			ErrorSubCode: UnacceptableHoldTime,
			Reason:       fmt.Sprintf("unacceptable hold time %d", msg.HoldTime),
		}
	}

	return msg, nil
}

func decodeNotificationMsg(body []byte) (*BGPNotification, error) {
	if len(body) < 2 {
		return nil, &BGPError{
			ErrorCode:    MessageHeaderError,
			ErrorSubCode: BadMessageLength,
			Reason:       "NOTIFICATION body too short",
		}
	}

	return &BGPNotification{
		ErrorCode:    body[0],
		ErrorSubcode: body[1],
		Data:         append([]byte(nil), body[2:]...),
	}, nil
}

func decodeUpdateMsg(body []byte) (*BGPUpdate, error) {
	msg := &BGPUpdate{}
	pos := 0

	if len(body) < 2 {
		return nil, malformedUpdate("missing withdrawn routes length")
	}
	withdrawnLen := int(binary.BigEndian.Uint16(body[pos : pos+2]))
	pos += 2

	if pos+withdrawnLen > len(body) {
		return nil, malformedUpdate("withdrawn routes length overruns message")
	}
	withdrawn, err := decodeNLRIs(body[pos : pos+withdrawnLen])
	if err != nil {
		return nil, err
	}
	msg.WithdrawnRoutes = withdrawn
	pos += withdrawnLen

	if pos+2 > len(body) {
		return nil, malformedUpdate("missing total path attribute length")
	}
	attrLen := int(binary.BigEndian.Uint16(body[pos : pos+2]))
	pos += 2

	if pos+attrLen > len(body) {
		return nil, malformedUpdate("path attribute length overruns message")
	}
	attrs, err := decodePathAttrs(body[pos : pos+attrLen])
	if err != nil {
		return nil, err
	}
	msg.PathAttributes = attrs
	pos += attrLen

	nlri, err := decodeNLRIs(body[pos:])
	if err != nil {
		return nil, err
	}
	msg.NLRI = nlri

	return msg, nil
}

func malformedUpdate(reason string) error {
	return &BGPError{
		ErrorCode:    UpdateMessageError,
		ErrorSubCode: MalformedAttributeList,
		Reason:       reason,
	}
}

// decodeNLRIs decodes a run of length-prefixed IPv4Prefix entries
// that must exactly fill buf (used for both withdrawn routes and
// NLRI, which are simply two runs of the same wire shape).
func decodeNLRIs(buf []byte) ([]NLRI, error) {
	var out []NLRI
	pos := 0
	for pos < len(buf) {
		pfxlen := buf[pos]
		if pfxlen > 32 {
			return nil, malformedUpdate(fmt.Sprintf("invalid prefix length %d", pfxlen))
		}
		n := wireLen(pfxlen)
		if pos+1+n > len(buf) {
			return nil, malformedUpdate("prefix overruns NLRI block")
		}

		var addr [4]byte
		copy(addr[:n], buf[pos+1:pos+1+n])

		out = append(out, NLRI{Pfxlen: pfxlen, Prefix: addr})
		pos += 1 + n
	}
	return out, nil
}

// wireLen is ceil(pfxlen/8), the number of significant address bytes
// an IPv4Prefix of the given length occupies on the wire.
func wireLen(pfxlen uint8) int {
	return int((pfxlen + 7) / 8)
}

func decodePathAttrs(buf []byte) ([]PathAttribute, error) {
	var out []PathAttribute
	pos := 0

	for pos < len(buf) {
		if pos+2 > len(buf) {
			return nil, malformedUpdate("truncated path attribute flags/type")
		}
		flags := buf[pos]
		pa := PathAttribute{
			Optional:       flags&0x80 != 0,
			Transitive:     flags&0x40 != 0,
			Partial:        flags&0x20 != 0,
			ExtendedLength: flags&0x10 != 0,
			TypeCode:       buf[pos+1],
		}
		pos += 2

		if pa.ExtendedLength {
			if pos+2 > len(buf) {
				return nil, malformedUpdate("truncated extended attribute length")
			}
			pa.Length = binary.BigEndian.Uint16(buf[pos : pos+2])
			pos += 2
		} else {
			if pos+1 > len(buf) {
				return nil, malformedUpdate("truncated attribute length")
			}
			pa.Length = uint16(buf[pos])
			pos++
		}

		if pos+int(pa.Length) > len(buf) {
			return nil, malformedUpdate("attribute value overruns message")
		}
		value := buf[pos : pos+int(pa.Length)]
		pos += int(pa.Length)

		decoded, err := decodeAttrValue(pa.TypeCode, value)
		if err != nil {
			return nil, err
		}
		pa.Value = decoded

		out = append(out, pa)
	}

	return out, nil
}

func decodeAttrValue(typeCode uint8, value []byte) (interface{}, error) {
	switch typeCode {
	case OriginAttr:
		if len(value) < 1 {
			return nil, malformedUpdate("ORIGIN attribute too short")
		}
		return Origin(value[0]), nil
	case ASPathAttr:
		return decodeASPath(value)
	case NextHopAttr:
		if len(value) < 4 {
			return nil, malformedUpdate("NEXT_HOP attribute too short")
		}
		var addr [4]byte
		copy(addr[:], value[:4])
		return addr, nil
	case MEDAttr:
		if len(value) < 4 {
			return nil, malformedUpdate("MULTI_EXIT_DISC attribute too short")
		}
		return binary.BigEndian.Uint32(value[:4]), nil
	case LocalPrefAttr:
		if len(value) < 4 {
			return nil, malformedUpdate("LOCAL_PREF attribute too short")
		}
		return binary.BigEndian.Uint32(value[:4]), nil
	case AtomicAggrAttr:
		return nil, nil
	case AggregatorAttr:
		if len(value) < 6 {
			return nil, malformedUpdate("AGGREGATOR attribute too short")
		}
		agg := Aggregator{ASN: binary.BigEndian.Uint16(value[:2])}
		copy(agg.Addr[:], value[2:6])
		return agg, nil
	default:
		// Unknown attributes are passed through opaquely; the
		// session layer never needs to interpret attribute content.
		return append([]byte(nil), value...), nil
	}
}

func decodeASPath(value []byte) (ASPath, error) {
	var path ASPath
	pos := 0
	for pos < len(value) {
		if pos+2 > len(value) {
			return nil, malformedUpdate("truncated AS_PATH segment header")
		}
		segType := value[pos]
		count := int(value[pos+1])
		pos += 2

		if segType != ASSet && segType != ASSequence {
			return nil, malformedUpdate(fmt.Sprintf("invalid AS_PATH segment type %d", segType))
		}
		if pos+count*2 > len(value) {
			return nil, malformedUpdate("AS_PATH segment overruns attribute")
		}

		seg := ASPathSegment{Type: segType, ASNs: make([]uint16, count)}
		for i := 0; i < count; i++ {
			seg.ASNs[i] = binary.BigEndian.Uint16(value[pos : pos+2])
			pos += 2
		}
		path = append(path, seg)
	}
	return path, nil
}

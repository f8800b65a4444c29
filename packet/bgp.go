// Package packet implements the BGP-4 wire codec: encoding and
// decoding of the four message types (OPEN, UPDATE, NOTIFICATION,
// KEEPALIVE) framed by the 19-byte BGP header. It is a pure function
// over byte slices — no I/O, no retained state.
package packet

// Message type codes, carried from the teacher's own numbering.
const (
	OctetLen = 8

	MarkerLen = 16
	HeaderLen = 19
	MinLen    = 19
	MaxLen    = 4096

	OpenMsg         = 1
	UpdateMsg       = 2
	NotificationMsg = 3
	KeepaliveMsg    = 4
)

// NOTIFICATION error codes.
const (
	MessageHeaderError      = 1
	OpenMessageError        = 2
	UpdateMessageError      = 3
	HoldTimeExpired         = 4
	FiniteStateMachineError = 5
	Cease                   = 6
)

// Message Header Error subcodes.
const (
	ConnectionNotSynchronised = 1
	BadMessageLength          = 2
	BadMessageType            = 3
)

// OPEN Message Error subcodes.
const (
	UnsupportedVersionNumber = 1
	BadPeerAS                = 2
	BadBGPIdentifier         = 3
	UnsupportedOptParam      = 4
	DeprecatedOpenMsgError5  = 5
	UnacceptableHoldTime     = 6
)

// UPDATE Message Error subcodes.
const (
	MalformedAttributeList    = 1
	UnrecognizedWellKnownAttr = 2
	MissingWellKnownAttr      = 3
	AttrFlagsError            = 4
	AttrLengthError           = 5
	InvalidOriginAttr         = 6
	DeprecatedUpdateMsgError7 = 7
	InvalidNextHopAttr        = 8
	OptionalAttrError         = 9
	InvalidNetworkField       = 10
	MalformedASPath           = 11
)

// Cease subcodes (RFC 4486) this session layer emits: CeaseUnspecified
// with the NOTIFICATION(Cease) the FSM sends on ManualStop/AutomaticStop,
// ConnectionCollisionResolution on the connection the transport drops
// when resolving a collision.
const (
	CeaseUnspecified              = 0
	ConnectionCollisionResolution = 7
)

// Path attribute type codes.
const (
	OriginAttr     = 1
	ASPathAttr     = 2
	NextHopAttr    = 3
	MEDAttr        = 4
	LocalPrefAttr  = 5
	AtomicAggrAttr = 6
	AggregatorAttr = 7
)

// ORIGIN attribute values.
const (
	OriginIGP        = 0
	OriginEGP        = 1
	OriginIncomplete = 2
)

// AS_PATH segment types.
const (
	ASSet      = 1
	ASSequence = 2
)

// BGP4Version is the only version this codec accepts.
const BGP4Version = 4

// BGPMessage is a decoded message: a header plus its typed body.
type BGPMessage struct {
	Header BGPHeader
	Body   interface{}
}

// BGPHeader is the 19-byte frame every message shares.
type BGPHeader struct {
	Length uint16
	Type   uint8
}

// BGPOpen is the body of an OPEN message.
type BGPOpen struct {
	Version       uint8
	ASN           uint16
	HoldTime      uint16
	BGPIdentifier uint32
	OptParmLen    uint8
	OptParams     []byte
}

// BGPNotification is the body of a NOTIFICATION message.
type BGPNotification struct {
	ErrorCode    uint8
	ErrorSubcode uint8
	Data         []byte
}

// BGPUpdate is the body of an UPDATE message.
type BGPUpdate struct {
	WithdrawnRoutes []NLRI
	PathAttributes  []PathAttribute
	NLRI            []NLRI
}

// PathAttribute is one decoded path attribute. Parsing beyond
// recognizing the type code and framing length is a best-effort
// convenience: the session layer itself only ever looks at withdrawn
// routes and NLRI, never at attribute content.
type PathAttribute struct {
	Length         uint16
	Optional       bool
	Transitive     bool
	Partial        bool
	ExtendedLength bool
	TypeCode       uint8
	Value          interface{}
}

// Origin is the decoded value of an ORIGIN attribute.
type Origin uint8

// ASPath is the decoded value of an AS_PATH attribute.
type ASPath []ASPathSegment

// ASPathSegment is one SET or SEQUENCE segment of an AS_PATH.
type ASPathSegment struct {
	Type uint8
	ASNs []uint16
}

// Aggregator is the decoded value of an AGGREGATOR attribute.
type Aggregator struct {
	ASN  uint16
	Addr [4]byte
}

// NLRI is one withdrawn-route or reachability prefix inside an
// UPDATE, in wire form (prefix length plus the significant address
// bytes). Callers that need the richer ipv4.Prefix type convert via
// ipv4.FromWireBytes.
type NLRI struct {
	Pfxlen uint8
	Prefix [4]byte
}

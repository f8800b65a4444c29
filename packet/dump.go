package packet

import (
	"net"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Dump logs msg's contents at debug level. Grounded on the teacher's
// fmt.Printf dumper, rewired onto structured logging so it's useful
// in a running daemon rather than only standalone debugging.
func (b *BGPMessage) Dump() {
	entry := log.WithFields(log.Fields{
		"msg_type":   b.Header.Type,
		"msg_length": b.Header.Length,
	})

	switch b.Header.Type {
	case OpenMsg:
		o := b.Body.(*BGPOpen)
		entry.WithFields(log.Fields{
			"version":   o.Version,
			"asn":       o.ASN,
			"hold_time": o.HoldTime,
			"bgp_id":    net.IP(convertID(o.BGPIdentifier)).String(),
		}).Debug("OPEN")
	case UpdateMsg:
		u := b.Body.(*BGPUpdate)
		for _, r := range u.WithdrawnRoutes {
			entry.WithField("prefix", prefixString(r)).Debug("UPDATE withdrawn route")
		}
		for _, a := range u.PathAttributes {
			entry.WithFields(log.Fields{"type_code": a.TypeCode, "value": a.Value}).Debug("UPDATE path attribute")
		}
		for _, n := range u.NLRI {
			entry.WithField("prefix", prefixString(n)).Debug("UPDATE NLRI")
		}
	case NotificationMsg:
		n := b.Body.(*BGPNotification)
		entry.WithFields(log.Fields{
			"error_code":    n.ErrorCode,
			"error_subcode": n.ErrorSubcode,
		}).Debug("NOTIFICATION")
	case KeepaliveMsg:
		entry.Debug("KEEPALIVE")
	}
}

func convertID(id uint32) []byte {
	return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

func prefixString(n NLRI) string {
	return net.IP(n.Prefix[:]).String() + "/" + strconv.Itoa(int(n.Pfxlen))
}

package resolve

import "github.com/crimson-sun/leaf/internal/model"

// Well-known service names for the ports that show up most in firewall
// audit logs.
var (
	tcpServices = map[uint16]string{
		20:   "ftp-data",
		21:   "ftp",
		22:   "ssh",
		23:   "telnet",
		25:   "smtp",
		53:   "domain",
		80:   "http",
		110:  "pop3",
		143:  "imap",
		389:  "ldap",
		443:  "https",
		445:  "microsoft-ds",
		465:  "smtps",
		587:  "submission",
		636:  "ldaps",
		993:  "imaps",
		995:  "pop3s",
		1433: "ms-sql-s",
		3306: "mysql",
		3389: "ms-wbt-server",
		5432: "postgresql",
		8080: "http-alt",
	}
	udpServices = map[uint16]string{
		53:  "domain",
		67:  "bootps",
		68:  "bootpc",
		69:  "tftp",
		123: "ntp",
		137: "netbios-ns",
		138: "netbios-dgm",
		161: "snmp",
		162: "snmptrap",
		500: "isakmp",
		514: "syslog",
	}
)

func serviceName(t model.ValueType, port uint16) (string, bool) {
	var name string
	var ok bool
	if t == model.TypeUDPPort {
		name, ok = udpServices[port]
	} else {
		name, ok = tcpServices[port]
	}
	return name, ok
}

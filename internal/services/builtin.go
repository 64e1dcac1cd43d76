package services

// builtinServices holds IANA assignments for commonly scanned ports, used
// when no services database is available on the host.
var builtinServices = []struct {
	port  int
	proto string
	name  string
}{
	{20, "tcp", "ftp-data"},
	{21, "tcp", "ftp"},
	{22, "tcp", "ssh"},
	{23, "tcp", "telnet"},
	{25, "tcp", "smtp"},
	{53, "tcp", "domain"},
	{53, "udp", "domain"},
	{67, "udp", "bootps"},
	{68, "udp", "bootpc"},
	{69, "udp", "tftp"},
	{80, "tcp", "http"},
	{88, "tcp", "kerberos"},
	{88, "udp", "kerberos"},
	{110, "tcp", "pop3"},
	{111, "tcp", "sunrpc"},
	{111, "udp", "sunrpc"},
	{119, "tcp", "nntp"},
	{123, "udp", "ntp"},
	{135, "tcp", "epmap"},
	{137, "udp", "netbios-ns"},
	{138, "udp", "netbios-dgm"},
	{139, "tcp", "netbios-ssn"},
	{143, "tcp", "imap2"},
	{161, "udp", "snmp"},
	{162, "udp", "snmp-trap"},
	{179, "tcp", "bgp"},
	{389, "tcp", "ldap"},
	{443, "tcp", "https"},
	{443, "udp", "https"},
	{445, "tcp", "microsoft-ds"},
	{465, "tcp", "submissions"},
	{500, "udp", "isakmp"},
	{514, "udp", "syslog"},
	{515, "tcp", "printer"},
	{520, "udp", "route"},
	{587, "tcp", "submission"},
	{631, "tcp", "ipp"},
	{636, "tcp", "ldaps"},
	{873, "tcp", "rsync"},
	{993, "tcp", "imaps"},
	{995, "tcp", "pop3s"},
	{1194, "udp", "openvpn"},
	{1433, "tcp", "ms-sql-s"},
	{1723, "tcp", "pptp"},
	{1812, "udp", "radius"},
	{1900, "udp", "ssdp"},
	{2049, "tcp", "nfs"},
	{2049, "udp", "nfs"},
	{3306, "tcp", "mysql"},
	{3389, "tcp", "ms-wbt-server"},
	{4500, "udp", "ipsec-nat-t"},
	{5060, "udp", "sip"},
	{5353, "udp", "mdns"},
	{5432, "tcp", "postgresql"},
	{5900, "tcp", "vnc"},
	{6379, "tcp", "redis"},
	{8080, "tcp", "http-alt"},
	{9100, "tcp", "jetdirect"},
}

// Builtin returns a database populated from the builtin table.
func Builtin() *DB {
	db := NewDB()
	for _, s := range builtinServices {
		db.Add(s.port, s.proto, s.name)
	}
	return db
}

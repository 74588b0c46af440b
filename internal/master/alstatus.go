// internal/master/alstatus.go
package master

// AL status codes reported by devices that refuse a state transition.
// Only the codes seen on servo drives in practice; everything else prints
// as unknown with the raw code alongside.
var alStatusText = map[uint16]string{
	0x0000: "no error",
	0x0001: "unspecified error",
	0x0011: "invalid requested state change",
	0x0012: "unknown requested state",
	0x0016: "invalid mailbox configuration",
	0x0017: "invalid sync manager configuration",
	0x001A: "synchronization error",
	0x001B: "sync manager watchdog",
	0x001D: "invalid output configuration",
	0x001E: "invalid input configuration",
	0x002C: "fatal sync error",
	0x002D: "no sync error",
	0x0030: "invalid DC sync configuration",
}

// ALStatusString returns a readable description for an AL status code.
func ALStatusString(code uint16) string {
	if s, ok := alStatusText[code]; ok {
		return s
	}
	return "unknown AL status"
}

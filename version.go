package rhea

import "runtime/debug"

const modulePath = "github.com/rheolabs/rhea"

// Version reports the rhea module version and checksum recorded in the
// running binary's build info. Both are empty when the binary was built
// without module support. A development build of rhea itself reports the
// main-module version, which may carry no checksum.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	if b.Main.Path == modulePath {
		return b.Main.Version, b.Main.Sum
	}
	for _, m := range b.Deps {
		if m.Path != modulePath {
			continue
		}
		if m.Replace != nil {
			return m.Version + "=>" + m.Replace.Path + "@" + m.Replace.Version, m.Replace.Sum
		}
		return m.Version, m.Sum
	}
	return "", ""
}

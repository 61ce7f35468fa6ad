package tls

import (
	"net"
	"sort"
)

// LANAddresses returns the non-loopback unicast IPv4 addresses of this
// machine's up interfaces, sorted. They go into certificate SANs and into
// the connect URL printed at startup.
func LANAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && ip4.IsGlobalUnicast() {
				out = append(out, ip4.String())
			}
		}
	}
	sort.Strings(out)
	return out
}

// AdvertiseHost picks the host clients should dial for a relay bound to
// listenHost. Wildcard binds resolve to the first LAN address, falling back
// to localhost.
func AdvertiseHost(listenHost string) string {
	switch listenHost {
	case "", "0.0.0.0", "::", "[::]":
		if lan := LANAddresses(); len(lan) > 0 {
			return lan[0]
		}
		return "localhost"
	}
	return listenHost
}

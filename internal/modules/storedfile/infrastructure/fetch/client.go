package fetch

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
)

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// NewClient returns the client imports are fetched with. Unless
// allowPrivate is set, connections to loopback, private, link-local and
// other non-public addresses are refused. The check runs on the resolved
// address, so it also covers redirects and hostnames pointing inward.
func NewClient(timeout time.Duration, allowPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !allowPrivate {
		dialer.Control = guard
		// a proxy would be dialled instead of the target
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

func guard(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrBlockedAddress, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !Public(ip) {
		return fmt.Errorf("%w: %s", domain.ErrBlockedAddress, host)
	}
	return nil
}

// Public reports whether ip is a globally routable unicast address.
func Public(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	if ip.Is4() && ip.As4()[0] == 0 {
		return false
	}
	return true
}

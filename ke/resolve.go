package ke

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/Phala-Network/phala-nts-go/ke/keerr"
)

// ErrNoIPv4AddrFound is wrapped by keerr when resolution succeeds but no
// IPv4 address is present and the caller requested IPv4.
var ErrNoIPv4AddrFound = errors.New("ke: no ipv4 address found")

// ErrNoIPv6AddrFound is wrapped by keerr when resolution succeeds but no
// IPv6 address is present and the caller requested IPv6.
var ErrNoIPv6AddrFound = errors.New("ke: no ipv6 address found")

// resolveAddr resolves host to a single "ip:port" endpoint matching the
// requested address family.
func resolveAddr(ctx context.Context, resolver *net.Resolver, host string, port uint16, useIPv6 bool) (string, error) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ips, err := resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return "", keerr.Wrap(keerr.StageResolve, keerr.CodeResolutionFailure, err)
	}
	for _, ip := range ips {
		isV4 := ip.To4() != nil
		if useIPv6 && !isV4 {
			return net.JoinHostPort(ip.String(), strconv.Itoa(int(port))), nil
		}
		if !useIPv6 && isV4 {
			return net.JoinHostPort(ip.String(), strconv.Itoa(int(port))), nil
		}
	}
	if useIPv6 {
		return "", keerr.Wrap(keerr.StageResolve, keerr.CodeNoIPv6AddrFound, ErrNoIPv6AddrFound)
	}
	return "", keerr.Wrap(keerr.StageResolve, keerr.CodeNoIPv4AddrFound, ErrNoIPv4AddrFound)
}

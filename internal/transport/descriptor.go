package transport

import (
	"encoding/binary"
	"fmt"
)

// Unmarshal decodes a raw USB configuration descriptor, as returned by a
// GET_DESCRIPTOR(CONFIGURATION) control transfer, into its nested
// interface/alt-setting/endpoint structure. Any bytes that appear between
// an INTERFACE descriptor and the next standard descriptor are preserved
// verbatim on that alt-setting's Extra field; this is how class-specific
// descriptors (such as the DFU functional descriptor) survive parsing.
func (c *ConfigDescriptor) Unmarshal(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("transport: config descriptor too short: %d bytes", len(data))
	}
	if data[1] != DescriptorTypeConfig {
		return fmt.Errorf("transport: expected config descriptor type 0x%02x, got 0x%02x", DescriptorTypeConfig, data[1])
	}

	c.Length = data[0]
	c.DescriptorType = data[1]
	c.TotalLength = binary.LittleEndian.Uint16(data[2:4])
	c.NumInterfaces = data[4]
	c.ConfigurationValue = data[5]
	c.ConfigurationIndex = data[6]
	c.Attributes = data[7]
	c.MaxPower = data[8]
	c.Interfaces = nil
	c.Extra = nil

	byIface := map[uint8]*Interface{}
	var order []uint8

	pos := int(c.Length)
	total := len(data)
	if int(c.TotalLength) < total {
		total = int(c.TotalLength)
	}

	var cur *InterfaceAltSetting
	var extraStart = -1

	flushExtra := func(end int) {
		if cur != nil && extraStart >= 0 && end > extraStart {
			cur.Extra = append([]byte(nil), data[extraStart:end]...)
		}
	}

	for pos+2 <= total {
		descLen := int(data[pos])
		descType := data[pos+1]
		if descLen < 2 || pos+descLen > total {
			break
		}

		switch descType {
		case DescriptorTypeInterface:
			flushExtra(pos)
			if descLen < 9 {
				return fmt.Errorf("transport: interface descriptor too short: %d bytes", descLen)
			}
			as := InterfaceAltSetting{
				Length:            data[pos],
				DescriptorType:    data[pos+1],
				InterfaceNumber:   data[pos+2],
				AlternateSetting:  data[pos+3],
				NumEndpoints:      data[pos+4],
				InterfaceClass:    data[pos+5],
				InterfaceSubClass: data[pos+6],
				InterfaceProtocol: data[pos+7],
				InterfaceIndex:    data[pos+8],
			}
			iface, ok := byIface[as.InterfaceNumber]
			if !ok {
				iface = &Interface{}
				byIface[as.InterfaceNumber] = iface
				order = append(order, as.InterfaceNumber)
			}
			iface.AltSettings = append(iface.AltSettings, as)
			cur = &iface.AltSettings[len(iface.AltSettings)-1]
			extraStart = pos + descLen

		case DescriptorTypeEndpoint:
			flushExtra(pos)
			if descLen < 7 {
				return fmt.Errorf("transport: endpoint descriptor too short: %d bytes", descLen)
			}
			ep := Endpoint{
				Length:          data[pos],
				DescriptorType:  data[pos+1],
				EndpointAddress: data[pos+2],
				Attributes:      data[pos+3],
				MaxPacketSize:   binary.LittleEndian.Uint16(data[pos+4 : pos+6]),
				Interval:        data[pos+6],
			}
			if cur != nil {
				cur.Endpoints = append(cur.Endpoints, ep)
			}
			extraStart = pos + descLen

		default:
			if cur == nil {
				c.Extra = append(c.Extra, data[pos:pos+descLen]...)
			}
		}

		pos += descLen
	}
	flushExtra(pos)

	for _, num := range order {
		c.Interfaces = append(c.Interfaces, *byIface[num])
	}
	return nil
}

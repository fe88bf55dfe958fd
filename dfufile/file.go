// Package dfufile implements the DFU firmware file codec.
package dfufile

// File is a parsed DFU firmware file: the raw payload (vendor prefix and
// suffix stripped), plus whatever metadata was found wrapping it.
type File struct {
	// Payload is the firmware image with any vendor prefix and the DFU
	// suffix removed.
	Payload []byte

	HasPrefix  bool
	PrefixType PrefixType
	// LoadAddress is only meaningful for PrefixStellaris.
	LoadAddress uint32

	HasSuffix bool
	Suffix    Suffix
}

// Load parses raw file bytes per the policy in §4.8. suffixReq controls
// whether a missing or present suffix is an error. prefixReq controls the
// vendor prefix: PrefixNeeds requires one, PrefixMaybe strips one when
// found, and under PrefixNone the leading bytes are not inspected at all,
// so a prefix that is present is neither detected nor rejected and stays
// in Payload.
func Load(data []byte, suffixReq SuffixReq, prefixReq PrefixReq) (*File, error) {
	f := &File{}

	body := data
	suffixLen := 0

	switch suffixReq {
	case SuffixNone:
		// no suffix expected; reject a file that carries one.
		if hasSuffixSignature(data) {
			return nil, DataError("unexpected DFU suffix present")
		}
	case SuffixNeeds, SuffixMaybe:
		suffix, err := parseSuffix(data)
		if err != nil {
			if suffixReq == SuffixNeeds || err != errNoSuffixSignature {
				return nil, err
			}
			// Maybe, and no signature at all: tolerate its absence. A
			// present-but-corrupt signature (bad bLength or CRC) still
			// falls through to the hard error above.
		} else {
			f.HasSuffix = true
			f.Suffix = suffix
			suffixLen = int(data[len(data)-5]) // bLength, already validated
			body = data[:len(data)-suffixLen]
		}
	}

	if prefixReq != PrefixNone {
		ptype, plen, addr := probePrefix(body, 0)
		if ptype != PrefixNoneType {
			f.HasPrefix = true
			f.PrefixType = ptype
			f.LoadAddress = addr
			body = body[plen:]
		} else if prefixReq == PrefixNeeds {
			return nil, DataError("no recognized vendor prefix found")
		}
	}

	f.Payload = body
	return f, nil
}

// DumpOptions controls what Dump attaches to the payload on the way out.
type DumpOptions struct {
	Prefix      PrefixType
	LoadAddress uint32

	WriteSuffix bool
	IDVendor    uint16
	IDProduct   uint16
	BcdDevice   uint16
	BcdDFU      uint16
}

// Dump serializes payload back into a file, adding a vendor prefix and/or
// DFU suffix per opts (§4.8 dump policy).
func Dump(payload []byte, opts DumpOptions) []byte {
	var out []byte

	switch opts.Prefix {
	case PrefixStellaris:
		out = append(out, encodeStellarisPrefix(opts.LoadAddress, len(payload))...)
	case PrefixLPCUnencrypted:
		out = append(out, encodeLPCPrefix(len(payload))...)
	}

	out = append(out, payload...)

	if opts.WriteSuffix {
		suffix := Suffix{
			BcdDevice: opts.BcdDevice,
			IDProduct: opts.IDProduct,
			IDVendor:  opts.IDVendor,
			BcdDFU:    opts.BcdDFU,
		}
		out = append(out, encodeSuffix(suffix, out)...)
	}

	return out
}

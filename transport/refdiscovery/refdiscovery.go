// Package refdiscovery parses the ref advertisement a smart-HTTP
// upload-pack service sends in response to an
// "info/refs?service=git-upload-pack" request: the service header, the
// ref list (with capabilities attached to the first ref), and any
// shallow-grafted commits.
// https://git-scm.com/docs/protocol-v2 (protocol v1 ref advertisement)
package refdiscovery

import (
	"errors"
	"io"
	"strings"

	"github.com/nivlgo/gitlite/ginternals"
	"github.com/nivlgo/gitlite/transport/pktline"
	"golang.org/x/xerrors"
)

const wantService = "# service=git-upload-pack"

var zeroOidHex = strings.Repeat("0", ginternals.OidSize*2)

var (
	// ErrBadServiceHeader is returned when the stream's first line isn't
	// the expected "# service=git-upload-pack" header.
	ErrBadServiceHeader = errors.New("refdiscovery: unexpected service header")
	// ErrBadObjectID is returned when a ref or shallow line's object id
	// isn't 40 lowercase hex characters.
	ErrBadObjectID = errors.New("refdiscovery: invalid object id")
	// ErrBadLine is returned when a ref-advertisement line doesn't match
	// any of the expected productions.
	ErrBadLine = errors.New("refdiscovery: malformed advertisement line")
	// ErrDuplicateRef is returned when the same ref name is advertised
	// more than once.
	ErrDuplicateRef = errors.New("refdiscovery: duplicate ref name")
	// ErrBadCapability is returned when a capability token contains
	// characters outside the allowed set.
	ErrBadCapability = errors.New("refdiscovery: invalid capability")
)

// Ref is a single advertised reference.
type Ref struct {
	Name string
	Oid  ginternals.Oid
	// Peeled holds the commit a tag points to, when the server peeled it
	// (a "^{}" line immediately following the tag's own line). Zero
	// value when the ref isn't a peeled tag.
	Peeled ginternals.Oid
}

// Advertisement is the parsed result of a ref discovery round.
type Advertisement struct {
	Refs         []Ref
	Capabilities map[string]string
	Shallow      []ginternals.Oid
}

// SymrefTarget returns the ref name the "symref=HEAD:<target>"
// capability points HEAD at, if the server advertised one.
func (a *Advertisement) SymrefTarget() (string, bool) {
	for k, v := range a.Capabilities {
		if k != "symref" {
			continue
		}
		name, target, ok := strings.Cut(v, ":")
		if ok && name == ginternals.Head {
			return target, true
		}
	}
	return "", false
}

// Parse reads a full ref advertisement from r.
func Parse(r io.Reader) (*Advertisement, error) {
	pr := pktline.NewReader(r)

	payload, typ, err := pr.ReadLine()
	if err != nil {
		return nil, xerrors.Errorf("refdiscovery: could not read service header: %w", err)
	}
	if typ != pktline.Data || strings.TrimSuffix(string(payload), "\n") != wantService {
		return nil, ErrBadServiceHeader
	}

	if _, typ, err := pr.ReadLine(); err != nil {
		return nil, xerrors.Errorf("refdiscovery: could not read header flush: %w", err)
	} else if typ != pktline.FlushPkt {
		return nil, ErrBadLine
	}

	adv := &Advertisement{Capabilities: map[string]string{}}
	seen := map[string]bool{}
	first := true

	for {
		payload, typ, err := pr.ReadLine()
		if err != nil {
			return nil, xerrors.Errorf("refdiscovery: could not read advertisement line: %w", err)
		}
		if typ == pktline.FlushPkt {
			break
		}
		if typ != pktline.Data {
			return nil, ErrBadLine
		}

		line := strings.TrimSuffix(string(payload), "\n")

		if rest, ok := strings.CutPrefix(line, "shallow "); ok {
			oid, err := parseOid(rest)
			if err != nil {
				return nil, err
			}
			adv.Shallow = append(adv.Shallow, oid)
			first = false
			continue
		}

		var capsRaw string
		if idx := strings.IndexByte(line, 0); idx >= 0 {
			capsRaw = line[idx+1:]
			line = line[:idx]
		}

		oidHex, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, ErrBadLine
		}

		if first {
			first = false
			if oidHex == zeroOidHex && name == "capabilities^{}" {
				if err := parseCapabilities(capsRaw, adv.Capabilities); err != nil {
					return nil, err
				}
				continue
			}
			if capsRaw == "" {
				return nil, ErrBadLine
			}
			if err := parseCapabilities(capsRaw, adv.Capabilities); err != nil {
				return nil, err
			}
		} else if capsRaw != "" {
			return nil, ErrBadLine
		}

		oid, err := parseOid(oidHex)
		if err != nil {
			return nil, err
		}

		if peeledName, ok := strings.CutSuffix(name, "^{}"); ok {
			if len(adv.Refs) == 0 || adv.Refs[len(adv.Refs)-1].Name != peeledName {
				return nil, ErrBadLine
			}
			adv.Refs[len(adv.Refs)-1].Peeled = oid
			continue
		}

		if seen[name] {
			return nil, ErrDuplicateRef
		}
		seen[name] = true
		adv.Refs = append(adv.Refs, Ref{Name: name, Oid: oid})
	}

	return adv, nil
}

func parseOid(hex string) (ginternals.Oid, error) {
	if !isLowerHex(hex) {
		return ginternals.NullOid, ErrBadObjectID
	}
	oid, err := ginternals.NewOidFromStr(hex)
	if err != nil {
		return ginternals.NullOid, ErrBadObjectID
	}
	return oid, nil
}

// isLowerHex reports whether s is exactly 40 lowercase hex digits.
// ginternals.NewOidFromStr accepts uppercase via encoding/hex, but the
// wire format only ever advertises lowercase object ids.
func isLowerHex(s string) bool {
	if len(s) != ginternals.OidSize*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func parseCapabilities(raw string, into map[string]string) error {
	if raw == "" {
		return nil
	}
	for _, tok := range strings.Fields(raw) {
		name, value, _ := strings.Cut(tok, "=")
		if !isValidCapabilityName(name) {
			return ErrBadCapability
		}
		into[name] = value
	}
	return nil
}

func isValidCapabilityName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

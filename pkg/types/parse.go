package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var gplinkGUIDRe = regexp.MustCompile(`\{(.*?)\}`)

// ParseSPN parses a servicePrincipalName string of the form
// class/host[:port[/name]] into an SPN record owned by ownerSID.
func ParseSPN(spn, ownerSID string) (*SPN, error) {
	class, tail, ok := strings.Cut(spn, "/")
	if !ok || class == "" || tail == "" {
		return nil, fmt.Errorf("malformed spn %q", spn)
	}

	s := &SPN{
		OwnerSID:     ownerSID,
		ServiceClass: class,
	}

	if idx := strings.Index(tail, ":"); idx != -1 {
		cut := strings.LastIndex(tail, ":")
		s.ComputerName = tail[:cut]
		port := tail[cut+1:]
		if slash := strings.LastIndex(port, "/"); slash != -1 {
			s.ServiceName = port[slash+1:]
			port = port[:slash]
		}
		s.Port = port
	} else {
		s.ComputerName = tail
		if slash := strings.LastIndex(tail, "/"); slash != -1 {
			s.ComputerName = tail[:slash]
			s.ServiceName = tail[slash+1:]
		}
	}

	return s, nil
}

// String re-serializes the SPN into its class/host[:port[/name]] form
func (s *SPN) String() string {
	var b strings.Builder
	b.WriteString(s.ServiceClass)
	b.WriteByte('/')
	b.WriteString(s.ComputerName)
	if s.Port != "" {
		b.WriteByte(':')
		b.WriteString(s.Port)
	}
	if s.ServiceName != "" {
		b.WriteByte('/')
		b.WriteString(s.ServiceName)
	}
	return b.String()
}

// ParseDelegation parses one allowedtodelegateto SPN string into a
// constrained-delegation target. The machine SID is bound by the caller
// once the owning machine row has been stored.
func ParseDelegation(spn string) (*MachineDelegation, error) {
	parsed, err := ParseSPN(spn, "")
	if err != nil {
		return nil, err
	}
	return &MachineDelegation{
		TargetSPN:    spn,
		ServiceClass: parsed.ServiceClass,
		ComputerName: parsed.ComputerName,
		Port:         parsed.Port,
		ServiceName:  parsed.ServiceName,
	}, nil
}

// ParseGPLinks parses a gPLink attribute string into its ordered GPO links.
// The grammar is zero or more [<gp>;<order>] segments where <gp> contains a
// braced GUID. Malformed segments are skipped.
func ParseGPLinks(raw string) []GPLink {
	var links []GPLink
	if raw == "" || raw == "None" {
		return links
	}

	for _, seg := range strings.Split(raw, "]") {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "None" {
			continue
		}
		if !strings.HasPrefix(seg, "[") {
			continue
		}
		gp, orderStr, ok := strings.Cut(seg[1:], ";")
		if !ok {
			continue
		}
		m := gplinkGUIDRe.FindStringSubmatch(gp)
		if m == nil {
			continue
		}
		order, err := strconv.Atoi(strings.TrimSpace(orderStr))
		if err != nil {
			continue
		}
		links = append(links, GPLink{
			GPODN: "{" + m[1] + "}",
			Order: order,
		})
	}

	return links
}

// DomainNameFromDN derives the DNS domain name from a domain DN, e.g.
// "DC=corp,DC=example,DC=com" becomes "corp.example.com".
func DomainNameFromDN(dn string) string {
	return strings.ReplaceAll(strings.ReplaceAll(dn, ",", "."), "DC=", "")
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSPN(t *testing.T) {
	tests := []struct {
		name    string
		spn     string
		class   string
		host    string
		port    string
		svcName string
		wantErr bool
	}{
		{
			name:    "class host port and instance",
			spn:     "MSSQLSvc/host.example.com:1433/inst1",
			class:   "MSSQLSvc",
			host:    "host.example.com",
			port:    "1433",
			svcName: "inst1",
		},
		{
			name:  "class and host only",
			spn:   "HTTP/web01",
			class: "HTTP",
			host:  "web01",
		},
		{
			name:  "class host and port",
			spn:   "ldap/dc01.corp.example.com:389",
			class: "ldap",
			host:  "dc01.corp.example.com",
			port:  "389",
		},
		{
			name:    "class host and name without port",
			spn:     "GC/dc01/corp.example.com",
			class:   "GC",
			host:    "dc01",
			svcName: "corp.example.com",
		},
		{
			name:    "no separator",
			spn:     "MSSQLSvc",
			wantErr: true,
		},
		{
			name:    "empty class",
			spn:     "/host",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSPN(tt.spn, "S-1-5-21-1-2-3-1001")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.class, s.ServiceClass)
			assert.Equal(t, tt.host, s.ComputerName)
			assert.Equal(t, tt.port, s.Port)
			assert.Equal(t, tt.svcName, s.ServiceName)
			assert.Equal(t, "S-1-5-21-1-2-3-1001", s.OwnerSID)
		})
	}
}

func TestParseSPNRoundTrip(t *testing.T) {
	spns := []string{
		"MSSQLSvc/host.example.com:1433/inst1",
		"HTTP/web01",
		"ldap/dc01.corp.example.com:389",
		"GC/dc01/corp.example.com",
	}
	for _, raw := range spns {
		s, err := ParseSPN(raw, "S-1-5-21-1-2-3-500")
		require.NoError(t, err)
		assert.Equal(t, raw, s.String())
	}
}

func TestParseGPLinks(t *testing.T) {
	raw := "[cn=foo,{11111111-1111-1111-1111-111111111111};0]" +
		"[cn=bar,{22222222-2222-2222-2222-222222222222};2]"
	links := ParseGPLinks(raw)
	require.Len(t, links, 2)
	assert.Equal(t, "{11111111-1111-1111-1111-111111111111}", links[0].GPODN)
	assert.Equal(t, 0, links[0].Order)
	assert.Equal(t, "{22222222-2222-2222-2222-222222222222}", links[1].GPODN)
	assert.Equal(t, 2, links[1].Order)
}

func TestParseGPLinksSkipsMalformedSegments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty string", "", 0},
		{"literal none", "None", 0},
		{"segment without guid", "[cn=foo,CN=Policies;0]", 0},
		{"segment without order", "[cn=foo,{11111111-1111-1111-1111-111111111111}]", 0},
		{
			"malformed segment between valid ones",
			"[cn=a,{11111111-1111-1111-1111-111111111111};0][garbage][cn=b,{22222222-2222-2222-2222-222222222222};1]",
			2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ParseGPLinks(tt.raw), tt.want)
		})
	}
}

func TestParseDelegation(t *testing.T) {
	d, err := ParseDelegation("cifs/files01.corp.example.com:445")
	require.NoError(t, err)
	assert.Equal(t, "cifs/files01.corp.example.com:445", d.TargetSPN)
	assert.Equal(t, "cifs", d.ServiceClass)
	assert.Equal(t, "files01.corp.example.com", d.ComputerName)
	assert.Equal(t, "445", d.Port)
}

func TestDomainNameFromDN(t *testing.T) {
	assert.Equal(t, "corp.example.com", DomainNameFromDN("DC=corp,DC=example,DC=com"))
	assert.Equal(t, "example.local", DomainNameFromDN("DC=example,DC=local"))
}

package ldap

import (
	"context"
	"fmt"
	"iter"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/corvid-labs/grackle/pkg/types"
)

// Config holds the directory connection settings shared by all sessions of
// an enumeration run
type Config struct {
	// URL is the directory server address, e.g. ldap://dc01.corp.example.com:389
	URL      string `yaml:"url"`
	BindDN   string `yaml:"bind_dn"`
	Password string `yaml:"password"`
	BaseDN   string `yaml:"base_dn"`
	// PageSize bounds each paged search request (default 1000)
	PageSize uint32 `yaml:"page_size"`
}

const defaultPageSize = 1000

// NewFactory returns a Factory producing go-ldap backed sessions
func NewFactory(cfg Config) Factory {
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	return &factory{cfg: cfg}
}

type factory struct {
	cfg Config
}

func (f *factory) NewClient() Client {
	return &client{cfg: f.cfg}
}

// client is one authenticated session over go-ldap
type client struct {
	cfg  Config
	conn *goldap.Conn
}

func (c *client) Connect(ctx context.Context) error {
	conn, err := goldap.DialURL(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.cfg.URL, err)
	}
	if err := conn.Bind(c.cfg.BindDN, c.cfg.Password); err != nil {
		conn.Close()
		return fmt.Errorf("failed to bind as %s: %w", c.cfg.BindDN, err)
	}
	c.conn = conn
	return nil
}

func (c *client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// searchPages runs a paged subtree search and yields entries page by page,
// keeping at most one page in memory.
func (c *client) searchPages(ctx context.Context, filter string, attrs []string) iter.Seq2[*goldap.Entry, error] {
	return func(yield func(*goldap.Entry, error) bool) {
		paging := goldap.NewControlPaging(c.cfg.PageSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			req := goldap.NewSearchRequest(
				c.cfg.BaseDN,
				goldap.ScopeWholeSubtree, goldap.NeverDerefAliases, 0, 0, false,
				filter, attrs,
				[]goldap.Control{paging},
			)
			res, err := c.conn.Search(req)
			if err != nil {
				yield(nil, fmt.Errorf("search %q failed: %w", filter, err))
				return
			}
			for _, entry := range res.Entries {
				if !yield(entry, nil) {
					return
				}
			}
			ctrl, ok := goldap.FindControl(res.Controls, goldap.ControlTypePaging).(*goldap.ControlPaging)
			if !ok || len(ctrl.Cookie) == 0 {
				return
			}
			paging.SetCookie(ctrl.Cookie)
		}
	}
}

func (c *client) GetADInfo(ctx context.Context) (*types.DomainInfo, error) {
	req := goldap.NewSearchRequest(
		c.cfg.BaseDN,
		goldap.ScopeBaseObject, goldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=domain)",
		[]string{"distinguishedName", "objectGUID", "objectSid", "name"},
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("domain info search failed: %w", err)
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("no domain object at %s", c.cfg.BaseDN)
	}
	entry := res.Entries[0]

	sid, err := entrySID(entry)
	if err != nil {
		return nil, err
	}
	guid, err := entryGUID(entry)
	if err != nil {
		return nil, err
	}
	return &types.DomainInfo{
		DistinguishedName: entry.DN,
		GUID:              guid,
		SID:               sid,
		Name:              entry.GetAttributeValue("name"),
	}, nil
}

func (c *client) GetAllUsers(ctx context.Context) iter.Seq2[*UserEntry, error] {
	attrs := []string{"distinguishedName", "objectGUID", "objectSid", "cn", "sAMAccountName", "servicePrincipalName"}
	return func(yield func(*UserEntry, error) bool) {
		for entry, err := range c.searchPages(ctx, "(&(objectClass=user)(objectCategory=person))", attrs) {
			if err != nil {
				yield(nil, err)
				return
			}
			sid, guid, err := entryIdentity(entry)
			if err != nil {
				yield(nil, err)
				return
			}
			u := &UserEntry{
				User: &types.User{
					DN:             entry.DN,
					GUID:           guid,
					SID:            sid,
					CN:             entry.GetAttributeValue("cn"),
					SAMAccountName: entry.GetAttributeValue("sAMAccountName"),
				},
				SPNs: entry.GetAttributeValues("servicePrincipalName"),
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}

func (c *client) GetAllMachines(ctx context.Context) iter.Seq2[*MachineEntry, error] {
	attrs := []string{
		"distinguishedName", "objectGUID", "objectSid", "cn", "sAMAccountName",
		"dNSHostName", "servicePrincipalName", "msDS-AllowedToDelegateTo",
	}
	return func(yield func(*MachineEntry, error) bool) {
		for entry, err := range c.searchPages(ctx, "(objectClass=computer)", attrs) {
			if err != nil {
				yield(nil, err)
				return
			}
			sid, guid, err := entryIdentity(entry)
			if err != nil {
				yield(nil, err)
				return
			}
			m := &MachineEntry{
				Machine: &types.Machine{
					DN:             entry.DN,
					GUID:           guid,
					SID:            sid,
					CN:             entry.GetAttributeValue("cn"),
					SAMAccountName: entry.GetAttributeValue("sAMAccountName"),
					DNSHostName:    entry.GetAttributeValue("dNSHostName"),
				},
				SPNs:                entry.GetAttributeValues("servicePrincipalName"),
				AllowedToDelegateTo: entry.GetAttributeValues("msDS-AllowedToDelegateTo"),
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (c *client) GetAllGroups(ctx context.Context) iter.Seq2[*types.Group, error] {
	attrs := []string{"distinguishedName", "objectGUID", "objectSid", "cn"}
	return func(yield func(*types.Group, error) bool) {
		for entry, err := range c.searchPages(ctx, "(objectClass=group)", attrs) {
			if err != nil {
				yield(nil, err)
				return
			}
			sid, guid, err := entryIdentity(entry)
			if err != nil {
				yield(nil, err)
				return
			}
			g := &types.Group{
				DN:   entry.DN,
				GUID: guid,
				SID:  sid,
				CN:   entry.GetAttributeValue("cn"),
			}
			if !yield(g, nil) {
				return
			}
		}
	}
}

func (c *client) GetAllOUs(ctx context.Context) iter.Seq2[*types.OU, error] {
	attrs := []string{"distinguishedName", "objectGUID", "name", "gPLink"}
	return func(yield func(*types.OU, error) bool) {
		for entry, err := range c.searchPages(ctx, "(objectCategory=organizationalUnit)", attrs) {
			if err != nil {
				yield(nil, err)
				return
			}
			guid, err := entryGUID(entry)
			if err != nil {
				yield(nil, err)
				return
			}
			ou := &types.OU{
				DN:        entry.DN,
				GUID:      guid,
				Name:      entry.GetAttributeValue("name"),
				GPLinkRaw: entry.GetAttributeValue("gPLink"),
			}
			if !yield(ou, nil) {
				return
			}
		}
	}
}

func (c *client) GetAllGPOs(ctx context.Context) iter.Seq2[*types.GPO, error] {
	attrs := []string{"distinguishedName", "objectGUID", "displayName", "gPCFileSysPath"}
	return func(yield func(*types.GPO, error) bool) {
		for entry, err := range c.searchPages(ctx, "(objectClass=groupPolicyContainer)", attrs) {
			if err != nil {
				yield(nil, err)
				return
			}
			guid, err := entryGUID(entry)
			if err != nil {
				yield(nil, err)
				return
			}
			g := &types.GPO{
				DN:          entry.DN,
				GUID:        guid,
				DisplayName: entry.GetAttributeValue("displayName"),
				Path:        entry.GetAttributeValue("gPCFileSysPath"),
			}
			if !yield(g, nil) {
				return
			}
		}
	}
}

func (c *client) GetAllTrusts(ctx context.Context) iter.Seq2[*types.Trust, error] {
	attrs := []string{"distinguishedName", "objectGUID", "cn", "securityIdentifier", "trustDirection", "trustType"}
	return func(yield func(*types.Trust, error) bool) {
		for entry, err := range c.searchPages(ctx, "(objectClass=trustedDomain)", attrs) {
			if err != nil {
				yield(nil, err)
				return
			}
			guid, err := entryGUID(entry)
			if err != nil {
				yield(nil, err)
				return
			}
			var sid string
			if raw := entry.GetRawAttributeValue("securityIdentifier"); len(raw) > 0 {
				sid, err = SIDFromBytes(raw)
				if err != nil {
					yield(nil, err)
					return
				}
			}
			tr := &types.Trust{
				DN:                 entry.DN,
				GUID:               guid,
				CN:                 entry.GetAttributeValue("cn"),
				SecurityIdentifier: sid,
				TrustDirection:     attrInt(entry, "trustDirection"),
				TrustType:          attrInt(entry, "trustType"),
			}
			if !yield(tr, nil) {
				return
			}
		}
	}
}

func (c *client) GetAllSPNEntries(ctx context.Context) iter.Seq2[*SPNEntry, error] {
	attrs := []string{"objectSid", "servicePrincipalName"}
	return func(yield func(*SPNEntry, error) bool) {
		for entry, err := range c.searchPages(ctx, "(servicePrincipalName=*)", attrs) {
			if err != nil {
				yield(nil, err)
				return
			}
			sid, err := entrySID(entry)
			if err != nil {
				yield(nil, err)
				return
			}
			e := &SPNEntry{
				SID:  sid,
				SPNs: entry.GetAttributeValues("servicePrincipalName"),
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (c *client) GetAllTokenGroups(ctx context.Context) iter.Seq2[*TokenGroupEntry, error] {
	return func(yield func(*TokenGroupEntry, error) bool) {
		kinds := []struct {
			filter string
			otype  types.ObjectKind
		}{
			{"(&(objectClass=user)(objectCategory=person))", types.ObjectKindUser},
			{"(objectClass=computer)", types.ObjectKindMachine},
			{"(objectClass=group)", types.ObjectKindGroup},
		}
		for _, k := range kinds {
			for entry, err := range c.searchPages(ctx, k.filter, []string{"cn", "objectGUID", "objectSid"}) {
				if err != nil {
					yield(nil, err)
					return
				}
				sid, guid, err := entryIdentity(entry)
				if err != nil {
					yield(nil, err)
					return
				}
				for member, err := range c.GetTokenGroups(ctx, entry.DN) {
					if err != nil {
						yield(nil, err)
						return
					}
					e := &TokenGroupEntry{
						CN:         entry.GetAttributeValue("cn"),
						DN:         entry.DN,
						GUID:       guid,
						SID:        sid,
						MemberSID:  member,
						ObjectType: k.otype,
					}
					if !yield(e, nil) {
						return
					}
				}
			}
		}
	}
}

func (c *client) GetTokenGroups(ctx context.Context, dn string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		req := goldap.NewSearchRequest(
			dn,
			goldap.ScopeBaseObject, goldap.NeverDerefAliases, 0, 0, false,
			"(objectClass=*)",
			[]string{"tokenGroups"},
			nil,
		)
		res, err := c.conn.Search(req)
		if err != nil {
			yield("", fmt.Errorf("tokengroups search for %s failed: %w", dn, err))
			return
		}
		for _, entry := range res.Entries {
			for _, raw := range entry.GetRawAttributeValues("tokenGroups") {
				sid, err := SIDFromBytes(raw)
				if err != nil {
					yield("", err)
					return
				}
				if !yield(sid, nil) {
					return
				}
			}
		}
	}
}

func (c *client) GetObjectACL(ctx context.Context, dn string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := goldap.NewSearchRequest(
		dn,
		goldap.ScopeBaseObject, goldap.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)",
		[]string{"nTSecurityDescriptor"},
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("acl search for %s failed: %w", dn, err)
	}
	if len(res.Entries) == 0 {
		return nil, fmt.Errorf("object not found: %s", dn)
	}
	return res.Entries[0].GetRawAttributeValue("nTSecurityDescriptor"), nil
}

func entrySID(entry *goldap.Entry) (string, error) {
	raw := entry.GetRawAttributeValue("objectSid")
	if len(raw) == 0 {
		return "", fmt.Errorf("entry %s has no objectSid", entry.DN)
	}
	return SIDFromBytes(raw)
}

func entryGUID(entry *goldap.Entry) (string, error) {
	raw := entry.GetRawAttributeValue("objectGUID")
	if len(raw) == 0 {
		return "", fmt.Errorf("entry %s has no objectGUID", entry.DN)
	}
	return GUIDFromBytes(raw)
}

func entryIdentity(entry *goldap.Entry) (sid, guid string, err error) {
	sid, err = entrySID(entry)
	if err != nil {
		return "", "", err
	}
	guid, err = entryGUID(entry)
	if err != nil {
		return "", "", err
	}
	return sid, guid, nil
}

func attrInt(entry *goldap.Entry, name string) int {
	v := entry.GetAttributeValue(name)
	if v == "" {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0
	}
	return n
}

package ldap

import (
	"context"
	"iter"

	"github.com/corvid-labs/grackle/pkg/types"
)

// UserEntry is one user result with its raw servicePrincipalName values
type UserEntry struct {
	User *types.User
	SPNs []string
}

// MachineEntry is one computer result with its raw servicePrincipalName
// and allowedtodelegateto values
type MachineEntry struct {
	Machine             *types.Machine
	SPNs                []string
	AllowedToDelegateTo []string
}

// SPNEntry is one servicePrincipalName-bearing result from the SPN sweep
type SPNEntry struct {
	SID  string
	SPNs []string
}

// TokenGroupEntry is one row of the whole-domain tokenGroups sweep
type TokenGroupEntry struct {
	CN         string
	DN         string
	GUID       string
	SID        string
	MemberSID  string
	ObjectType types.ObjectKind
}

// Client is one authenticated directory session. Streaming calls yield
// lazily; iteration stops on the first yield returning false. A Client is
// owned by exactly one enumeration worker and is not safe for concurrent
// use.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	GetADInfo(ctx context.Context) (*types.DomainInfo, error)
	GetAllUsers(ctx context.Context) iter.Seq2[*UserEntry, error]
	GetAllMachines(ctx context.Context) iter.Seq2[*MachineEntry, error]
	GetAllGroups(ctx context.Context) iter.Seq2[*types.Group, error]
	GetAllOUs(ctx context.Context) iter.Seq2[*types.OU, error]
	GetAllGPOs(ctx context.Context) iter.Seq2[*types.GPO, error]
	GetAllTrusts(ctx context.Context) iter.Seq2[*types.Trust, error]
	GetAllSPNEntries(ctx context.Context) iter.Seq2[*SPNEntry, error]
	GetAllTokenGroups(ctx context.Context) iter.Seq2[*TokenGroupEntry, error]
	GetTokenGroups(ctx context.Context, dn string) iter.Seq2[string, error]
	GetObjectACL(ctx context.Context, dn string) ([]byte, error)
}

// Factory creates one Client per enumeration worker, the way a connection
// URL decoder hands out sessions. Each worker owns its session exclusively.
type Factory interface {
	NewClient() Client
}

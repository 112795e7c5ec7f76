package types

// EnumState represents the lifecycle state of an enumeration run
type EnumState string

const (
	EnumStateStarted  EnumState = "STARTED"
	EnumStateFinished EnumState = "FINISHED"
	EnumStateAborted  EnumState = "ABORTED"
)

// ObjectKind identifies the directory object variant a record belongs to
type ObjectKind string

const (
	ObjectKindUser    ObjectKind = "user"
	ObjectKindMachine ObjectKind = "machine"
	ObjectKindGroup   ObjectKind = "group"
	ObjectKindOU      ObjectKind = "ou"
	ObjectKindGPO     ObjectKind = "gpo"
	ObjectKindTrust   ObjectKind = "trust"
	ObjectKindDomain  ObjectKind = "domain"
)

// DomainInfo is the root record of an enumeration run. Storing it assigns
// the run's AD id; every other record of the run references that id.
type DomainInfo struct {
	ID                int64     `db:"id" json:"id"`
	DistinguishedName string    `db:"dn" json:"dn"`
	GUID              string    `db:"guid" json:"guid"`
	SID               string    `db:"sid" json:"sid"`
	Name              string    `db:"name" json:"name"`
	EnumState         EnumState `db:"enum_state" json:"enum_state"`
}

// User represents an AD user account
type User struct {
	ID             int64  `db:"id" json:"id"`
	ADID           int64  `db:"ad_id" json:"ad_id"`
	DN             string `db:"dn" json:"dn"`
	GUID           string `db:"guid" json:"guid"`
	SID            string `db:"sid" json:"sid"`
	CN             string `db:"cn" json:"cn"`
	SAMAccountName string `db:"sam_account_name" json:"sam_account_name"`
}

// Machine represents an AD computer account
type Machine struct {
	ID             int64  `db:"id" json:"id"`
	ADID           int64  `db:"ad_id" json:"ad_id"`
	DN             string `db:"dn" json:"dn"`
	GUID           string `db:"guid" json:"guid"`
	SID            string `db:"sid" json:"sid"`
	CN             string `db:"cn" json:"cn"`
	SAMAccountName string `db:"sam_account_name" json:"sam_account_name"`
	DNSHostName    string `db:"dns_hostname" json:"dns_hostname"`
}

// Group represents an AD group
type Group struct {
	ID   int64  `db:"id" json:"id"`
	ADID int64  `db:"ad_id" json:"ad_id"`
	DN   string `db:"dn" json:"dn"`
	GUID string `db:"guid" json:"guid"`
	SID  string `db:"sid" json:"sid"`
	CN   string `db:"cn" json:"cn"`
}

// OU represents an organizational unit. GPLinkRaw carries the unparsed
// gPLink attribute string; ParseGPLinks turns it into GPLink rows.
type OU struct {
	ID        int64  `db:"id" json:"id"`
	ADID      int64  `db:"ad_id" json:"ad_id"`
	DN        string `db:"dn" json:"dn"`
	GUID      string `db:"guid" json:"guid"`
	Name      string `db:"name" json:"name"`
	GPLinkRaw string `db:"gplink" json:"gplink"`
}

// GPO represents a group policy object
type GPO struct {
	ID          int64  `db:"id" json:"id"`
	ADID        int64  `db:"ad_id" json:"ad_id"`
	DN          string `db:"dn" json:"dn"`
	GUID        string `db:"guid" json:"guid"`
	DisplayName string `db:"display_name" json:"display_name"`
	Path        string `db:"path" json:"path"`
}

// Trust represents a domain trust relationship
type Trust struct {
	ID                 int64  `db:"id" json:"id"`
	ADID               int64  `db:"ad_id" json:"ad_id"`
	DN                 string `db:"dn" json:"dn"`
	GUID               string `db:"guid" json:"guid"`
	CN                 string `db:"cn" json:"cn"`
	SecurityIdentifier string `db:"security_identifier" json:"security_identifier"`
	TrustDirection     int    `db:"trust_direction" json:"trust_direction"`
	TrustType          int    `db:"trust_type" json:"trust_type"`
}

// SPN is a service principal name parsed into its parts and bound to the
// SID that owns it. User enumeration stores one row per SPN on the account.
type SPN struct {
	ID           int64  `db:"id" json:"id"`
	ADID         int64  `db:"ad_id" json:"ad_id"`
	OwnerSID     string `db:"owner_sid" json:"owner_sid"`
	ServiceClass string `db:"service_class" json:"service_class"`
	ComputerName string `db:"computername" json:"computername"`
	Port         string `db:"port" json:"port"`
	ServiceName  string `db:"service_name" json:"service_name"`
}

// SPNService is an SPN row produced by the dedicated SPNSERVICES sweep.
// Same shape as SPN but kept in its own table, matching the store schema.
type SPNService struct {
	ID           int64  `db:"id" json:"id"`
	ADID         int64  `db:"ad_id" json:"ad_id"`
	OwnerSID     string `db:"owner_sid" json:"owner_sid"`
	ServiceClass string `db:"service_class" json:"service_class"`
	ComputerName string `db:"computername" json:"computername"`
	Port         string `db:"port" json:"port"`
	ServiceName  string `db:"service_name" json:"service_name"`
}

// MachineDelegation is one constrained-delegation target parsed from a
// machine's allowedtodelegateto attribute, keyed by the machine SID.
type MachineDelegation struct {
	ID           int64  `db:"id" json:"id"`
	MachineSID   string `db:"machine_sid" json:"machine_sid"`
	TargetSPN    string `db:"target_spn" json:"target_spn"`
	ServiceClass string `db:"service_class" json:"service_class"`
	ComputerName string `db:"computername" json:"computername"`
	Port         string `db:"port" json:"port"`
	ServiceName  string `db:"service_name" json:"service_name"`
}

// TokenGroup is one effective-membership SID from a subject's token.
// Serialized as JSON lines in the token spill file before bulk load.
type TokenGroup struct {
	ID         int64      `db:"id" json:"id"`
	ADID       int64      `db:"ad_id" json:"ad_id"`
	GUID       string     `db:"guid" json:"guid"`
	SID        string     `db:"sid" json:"sid"`
	ObjectType ObjectKind `db:"object_type" json:"object_type"`
	MemberSID  string     `db:"member_sid" json:"member_sid"`
}

// SDBinding binds a security descriptor to a directory object. SD is the
// base64 of the raw descriptor bytes, SDHash its SHA-1 hex digest. At most
// one binding exists per (ad_id, guid); the uniqueness key drives resumption.
type SDBinding struct {
	ID         int64      `db:"id" json:"id"`
	ADID       int64      `db:"ad_id" json:"ad_id"`
	GUID       string     `db:"guid" json:"guid"`
	SID        string     `db:"sid" json:"sid"`
	ObjectType ObjectKind `db:"object_type" json:"object_type"`
	SD         string     `db:"sd" json:"sd"`
	SDHash     string     `db:"sd_hash" json:"sd_hash"`
}

// GPLink is one parsed gPLink segment attached to an OU
type GPLink struct {
	ID     int64  `db:"id" json:"id"`
	ADID   int64  `db:"ad_id" json:"ad_id"`
	OUGUID string `db:"ou_guid" json:"ou_guid"`
	GPODN  string `db:"gpo_dn" json:"gpo_dn"`
	Order  int    `db:"link_order" json:"link_order"`
}

// Target identifies one directory object a second-pass job operates on
type Target struct {
	DN         string     `db:"dn" json:"dn"`
	GUID       string     `db:"guid" json:"guid"`
	SID        string     `db:"sid" json:"sid"`
	ObjectType ObjectKind `db:"object_type" json:"object_type"`
}

// GraphInfo maps a graph id to the enumeration run it was built from
type GraphInfo struct {
	ID   int64 `db:"id" json:"id"`
	ADID int64 `db:"ad_id" json:"ad_id"`
}

// EdgeLookup assigns a stable integer id to an (ad_id, oid) pair, where oid
// is usually a SID. Edges reference endpoints through these ids; the table
// is the single resolver between graph node ids and directory identifiers.
type EdgeLookup struct {
	ID    int64  `db:"id" json:"id"`
	ADID  int64  `db:"ad_id" json:"ad_id"`
	OID   string `db:"oid" json:"oid"`
	OType string `db:"otype" json:"otype"`
}

// Edge is one labelled directed edge of a graph. Multiple labels between
// the same endpoints are stored as separate rows.
type Edge struct {
	ID      int64  `db:"id" json:"id"`
	GraphID int64  `db:"graph_id" json:"graph_id"`
	ADID    int64  `db:"ad_id" json:"ad_id"`
	Src     int64  `db:"src" json:"src"`
	Dst     int64  `db:"dst" json:"dst"`
	Label   string `db:"label" json:"label"`
}

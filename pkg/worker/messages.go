package worker

import "github.com/corvid-labs/grackle/pkg/types"

// Command names a job category. The enumeration manager schedules one
// breadth command per category in the first pass, then fans out per-object
// SDS and MEMBERSHIPS jobs in the second.
type Command string

const (
	CmdDomainInfo  Command = "DOMAININFO"
	CmdTrusts      Command = "TRUSTS"
	CmdUsers       Command = "USERS"
	CmdMachines    Command = "MACHINES"
	CmdGroups      Command = "GROUPS"
	CmdOUs         Command = "OUS"
	CmdGPOs        Command = "GPOS"
	CmdSPNServices Command = "SPNSERVICES"
	CmdSDs         Command = "SDS"
	CmdMemberships Command = "MEMBERSHIPS"
)

// Job is one unit of work handed to a worker. Target is set only on
// second-pass SDS and MEMBERSHIPS jobs; an SDS job with a nil target asks
// the worker to acknowledge the end of the SD stream.
type Job struct {
	Command Command
	Target  *types.Target
}

// MessageKind names a worker result variant
type MessageKind string

const (
	MsgDomainInfo MessageKind = "DOMAININFO"
	MsgTrust      MessageKind = "TRUSTS"
	MsgUser       MessageKind = "USER"
	MsgMachine    MessageKind = "MACHINE"
	MsgGroup      MessageKind = "GROUP"
	MsgOU         MessageKind = "OU"
	MsgGPO        MessageKind = "GPO"
	MsgSPNService MessageKind = "SPNSERVICE"
	MsgSD         MessageKind = "SD"
	MsgMembership MessageKind = "MEMBERSHIP"
	MsgException  MessageKind = "EXCEPTION"

	MsgDomainInfoFinished  MessageKind = "DOMAININFO_FINISHED"
	MsgTrustsFinished      MessageKind = "TRUSTS_FINISHED"
	MsgUsersFinished       MessageKind = "USERS_FINISHED"
	MsgMachinesFinished    MessageKind = "MACHINES_FINISHED"
	MsgGroupsFinished      MessageKind = "GROUPS_FINISHED"
	MsgOUsFinished         MessageKind = "OUS_FINISHED"
	MsgGPOsFinished        MessageKind = "GPOS_FINISHED"
	MsgSPNServicesFinished MessageKind = "SPNSERVICES_FINISHED"
	MsgSDsFinished         MessageKind = "SDS_FINISHED"
	MsgMembershipFinished  MessageKind = "MEMBERSHIP_FINISHED"
)

// Message is one typed result on the worker output channel
type Message struct {
	Kind   MessageKind
	Worker int

	DomainInfo *types.DomainInfo
	Trust      *types.Trust
	User       *UserResult
	Machine    *MachineResult
	Group      *types.Group
	OU         *types.OU
	GPO        *types.GPO
	SPNService *types.SPNService
	SD         *types.SDBinding
	Membership *types.TokenGroup
	Exception  string
}

// UserResult carries one user with its SPN rows already parsed
type UserResult struct {
	User *types.User
	SPNs []*types.SPN
}

// MachineResult carries one machine with its parsed delegation targets
type MachineResult struct {
	Machine     *types.Machine
	Delegations []*types.MachineDelegation
}

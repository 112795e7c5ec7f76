package worker

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/corvid-labs/grackle/pkg/ldap"
	"github.com/corvid-labs/grackle/pkg/log"
	"github.com/corvid-labs/grackle/pkg/metrics"
	"github.com/corvid-labs/grackle/pkg/types"
)

// Worker owns one directory session and runs the job loop: consume jobs
// from the shared input channel, dispatch by command, emit typed messages
// on the output channel. Failures never take the worker down; they surface
// as EXCEPTION messages and the category terminator still goes out so the
// manager's accounting closes.
type Worker struct {
	id      int
	factory ldap.Factory
	client  ldap.Client
	in      <-chan Job
	out     chan<- Message
	logger  zerolog.Logger
}

// NewWorker creates a worker reading jobs from in and emitting results on
// out. The directory session is established when Run starts.
func NewWorker(id int, factory ldap.Factory, in <-chan Job, out chan<- Message) *Worker {
	return &Worker{
		id:      id,
		factory: factory,
		in:      in,
		out:     out,
		logger:  log.WithComponent("worker").With().Int("worker_id", id).Logger(),
	}
}

// Run connects the directory session and processes jobs until the input
// channel closes or ctx is cancelled. A connect failure emits EXCEPTION and
// returns without entering the loop.
func (w *Worker) Run(ctx context.Context) {
	w.client = w.factory.NewClient()
	if err := w.client.Connect(ctx); err != nil {
		w.exception(ctx, fmt.Errorf("failed to connect directory session: %w", err))
		return
	}
	defer w.client.Close()
	w.logger.Debug().Msg("worker session established")

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.in:
			if !ok {
				return
			}
			w.dispatch(ctx, job)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.exception(ctx, fmt.Errorf("panic in %s handler: %v", job.Command, r))
		}
	}()

	switch job.Command {
	case CmdDomainInfo:
		w.runDomainInfo(ctx)
	case CmdTrusts:
		w.runTrusts(ctx)
	case CmdUsers:
		w.runUsers(ctx)
	case CmdMachines:
		w.runMachines(ctx)
	case CmdGroups:
		w.runGroups(ctx)
	case CmdOUs:
		w.runOUs(ctx)
	case CmdGPOs:
		w.runGPOs(ctx)
	case CmdSPNServices:
		w.runSPNServices(ctx)
	case CmdSDs:
		w.runSD(ctx, job.Target)
	case CmdMemberships:
		w.runMemberships(ctx, job.Target)
	default:
		w.exception(ctx, fmt.Errorf("unknown command %q", job.Command))
	}
}

// emit delivers one message, giving up only on cancellation
func (w *Worker) emit(ctx context.Context, msg Message) {
	msg.Worker = w.id
	select {
	case w.out <- msg:
	case <-ctx.Done():
	}
}

// exception converts an error into an EXCEPTION message with a stack trace
func (w *Worker) exception(ctx context.Context, err error) {
	metrics.WorkerExceptions.Inc()
	w.emit(ctx, Message{
		Kind:      MsgException,
		Exception: fmt.Sprintf("%v\n%s", err, debug.Stack()),
	})
}

func (w *Worker) runDomainInfo(ctx context.Context) {
	defer w.emit(ctx, Message{Kind: MsgDomainInfoFinished})
	info, err := w.client.GetADInfo(ctx)
	if err != nil {
		w.exception(ctx, err)
		return
	}
	w.emit(ctx, Message{Kind: MsgDomainInfo, DomainInfo: info})
}

func (w *Worker) runTrusts(ctx context.Context) {
	defer w.emit(ctx, Message{Kind: MsgTrustsFinished})
	for trust, err := range w.client.GetAllTrusts(ctx) {
		if err != nil {
			w.exception(ctx, err)
			return
		}
		w.emit(ctx, Message{Kind: MsgTrust, Trust: trust})
	}
}

func (w *Worker) runUsers(ctx context.Context) {
	defer w.emit(ctx, Message{Kind: MsgUsersFinished})
	for entry, err := range w.client.GetAllUsers(ctx) {
		if err != nil {
			w.exception(ctx, err)
			return
		}
		result := &UserResult{User: entry.User}
		for _, raw := range entry.SPNs {
			spn, err := types.ParseSPN(raw, entry.User.SID)
			if err != nil {
				w.logger.Debug().Str("spn", raw).Err(err).Msg("skipping unparseable spn")
				continue
			}
			result.SPNs = append(result.SPNs, spn)
		}
		w.emit(ctx, Message{Kind: MsgUser, User: result})
	}
}

func (w *Worker) runMachines(ctx context.Context) {
	defer w.emit(ctx, Message{Kind: MsgMachinesFinished})
	for entry, err := range w.client.GetAllMachines(ctx) {
		if err != nil {
			w.exception(ctx, err)
			return
		}
		result := &MachineResult{Machine: entry.Machine}
		for _, raw := range entry.AllowedToDelegateTo {
			del, err := types.ParseDelegation(raw)
			if err != nil {
				w.logger.Debug().Str("spn", raw).Err(err).Msg("skipping unparseable delegation target")
				continue
			}
			result.Delegations = append(result.Delegations, del)
		}
		w.emit(ctx, Message{Kind: MsgMachine, Machine: result})
	}
}

func (w *Worker) runGroups(ctx context.Context) {
	defer w.emit(ctx, Message{Kind: MsgGroupsFinished})
	for group, err := range w.client.GetAllGroups(ctx) {
		if err != nil {
			w.exception(ctx, err)
			return
		}
		w.emit(ctx, Message{Kind: MsgGroup, Group: group})
	}
}

func (w *Worker) runOUs(ctx context.Context) {
	defer w.emit(ctx, Message{Kind: MsgOUsFinished})
	for ou, err := range w.client.GetAllOUs(ctx) {
		if err != nil {
			w.exception(ctx, err)
			return
		}
		w.emit(ctx, Message{Kind: MsgOU, OU: ou})
	}
}

func (w *Worker) runGPOs(ctx context.Context) {
	defer w.emit(ctx, Message{Kind: MsgGPOsFinished})
	for gpo, err := range w.client.GetAllGPOs(ctx) {
		if err != nil {
			w.exception(ctx, err)
			return
		}
		w.emit(ctx, Message{Kind: MsgGPO, GPO: gpo})
	}
}

func (w *Worker) runSPNServices(ctx context.Context) {
	defer w.emit(ctx, Message{Kind: MsgSPNServicesFinished})
	for entry, err := range w.client.GetAllSPNEntries(ctx) {
		if err != nil {
			w.exception(ctx, err)
			return
		}
		for _, raw := range entry.SPNs {
			spn, err := types.ParseSPN(raw, entry.SID)
			if err != nil {
				w.logger.Debug().Str("spn", raw).Err(err).Msg("skipping unparseable spn")
				continue
			}
			w.emit(ctx, Message{Kind: MsgSPNService, SPNService: &types.SPNService{
				OwnerSID:     spn.OwnerSID,
				ServiceClass: spn.ServiceClass,
				ComputerName: spn.ComputerName,
				Port:         spn.Port,
				ServiceName:  spn.ServiceName,
			}})
		}
	}
}

// runSD fetches one object's security descriptor. A nil target acknowledges
// that the SD stream has drained. Exactly one message goes out per targeted
// job, SD or EXCEPTION, which is what the manager's accounting counts.
func (w *Worker) runSD(ctx context.Context, target *types.Target) {
	if target == nil {
		w.emit(ctx, Message{Kind: MsgSDsFinished})
		return
	}
	raw, err := w.client.GetObjectACL(ctx, target.DN)
	if err != nil {
		w.exception(ctx, fmt.Errorf("failed to read acl of %s: %w", target.DN, err))
		return
	}
	sum := sha1.Sum(raw)
	w.emit(ctx, Message{Kind: MsgSD, SD: &types.SDBinding{
		GUID:       target.GUID,
		SID:        target.SID,
		ObjectType: target.ObjectType,
		SD:         base64.StdEncoding.EncodeToString(raw),
		SDHash:     hex.EncodeToString(sum[:]),
	}})
}

// runMemberships streams one object's effective memberships. The terminator
// goes out for every job, including failed ones.
func (w *Worker) runMemberships(ctx context.Context, target *types.Target) {
	defer w.emit(ctx, Message{Kind: MsgMembershipFinished})
	if target == nil {
		return
	}
	for sid, err := range w.client.GetTokenGroups(ctx, target.DN) {
		if err != nil {
			w.exception(ctx, fmt.Errorf("failed to read token groups of %s: %w", target.DN, err))
			return
		}
		w.emit(ctx, Message{Kind: MsgMembership, Membership: &types.TokenGroup{
			GUID:       target.GUID,
			SID:        target.SID,
			ObjectType: target.ObjectType,
			MemberSID:  sid,
		}})
	}
}

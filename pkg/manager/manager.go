package manager

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/corvid-labs/grackle/pkg/ldap"
	"github.com/corvid-labs/grackle/pkg/log"
	"github.com/corvid-labs/grackle/pkg/metrics"
	"github.com/corvid-labs/grackle/pkg/progress"
	"github.com/corvid-labs/grackle/pkg/storage"
	"github.com/corvid-labs/grackle/pkg/types"
	"github.com/corvid-labs/grackle/pkg/worker"
)

// bulkCommitEvery is the row cadence of spill bulk-load commits
const bulkCommitEvery = 10000

// maxWorkers caps the pool; directory servers throttle past a few parallel
// paged searches
const maxWorkers = 3

// phase1Order is the fixed breadth category sequence. adinfo is a barrier:
// nothing runs beside it, because its result assigns the ad_id every later
// record carries.
var phase1Order = []worker.Command{
	worker.CmdDomainInfo,
	worker.CmdTrusts,
	worker.CmdUsers,
	worker.CmdMachines,
	worker.CmdGroups,
	worker.CmdOUs,
	worker.CmdGPOs,
	worker.CmdSPNServices,
}

// categoryNames maps commands to the names reported through progress
var categoryNames = map[worker.Command]string{
	worker.CmdDomainInfo:  "adinfo",
	worker.CmdTrusts:      "trusts",
	worker.CmdUsers:       "users",
	worker.CmdMachines:    "machines",
	worker.CmdGroups:      "groups",
	worker.CmdOUs:         "ous",
	worker.CmdGPOs:        "gpos",
	worker.CmdSPNServices: "spns",
	worker.CmdSDs:         "sds",
	worker.CmdMemberships: "memberships",
}

// Config holds enumeration manager configuration
type Config struct {
	// Workers sizes the pool; 0 means min(GOMAXPROCS, 3)
	Workers int `yaml:"workers"`

	// SpillDir receives the SD and token spill files; empty means the
	// system temp directory
	SpillDir string `yaml:"spill_dir"`

	// ResumeADID resumes an earlier run: the breadth pass is skipped and
	// only objects missing SD or membership rows are fetched
	ResumeADID int64 `yaml:"resume_ad_id"`
}

// Manager drives one enumeration run: a pool of workers fed through a
// shared job channel, results routed from a bounded output channel into
// the store and the spill files. The *_FINISHED sentinels on the output
// channel are the only signal used to advance between categories and
// phases.
type Manager struct {
	cfg     Config
	store   *storage.Store
	factory ldap.Factory
	obs     progress.Observer
	logger  zerolog.Logger

	in       chan worker.Job
	out      chan worker.Message
	wg       sync.WaitGroup
	poolDone chan struct{}

	adID       int64
	domainSID  string
	domainName string

	finished []string
	running  map[worker.Command]bool
}

// New creates a manager. The store and factory are borrowed, not owned;
// the caller closes them after Run returns.
func New(cfg Config, store *storage.Store, factory ldap.Factory, obs progress.Observer) *Manager {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.GOMAXPROCS(0), maxWorkers)
	}
	if obs == nil {
		obs = progress.Nop{}
	}
	return &Manager{
		cfg:     cfg,
		store:   store,
		factory: factory,
		obs:     obs,
		logger:  log.WithComponent("manager"),
		running: make(map[worker.Command]bool),
	}
}

// Run executes the full pipeline and returns the run's ad_id. On error or
// cancellation the run is marked ABORTED and partial data stays committed.
func (m *Manager) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	n := m.cfg.Workers
	m.in = make(chan worker.Job, 2*n)
	m.out = make(chan worker.Message, n)

	for i := 0; i < n; i++ {
		w := worker.NewWorker(i, m.factory, m.in, m.out)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			w.Run(ctx)
		}()
	}
	// poolDone closing before the job channel does means every session
	// failed; waiting on the output channel would hang forever
	m.poolDone = make(chan struct{})
	go func() {
		m.wg.Wait()
		close(m.poolDone)
	}()
	defer m.stopWorkers()

	if err := m.run(ctx); err != nil {
		m.abort()
		return m.adID, err
	}

	if err := m.store.UpdateEnumState(m.adID, types.EnumStateFinished); err != nil {
		m.abort()
		return m.adID, err
	}
	if err := m.store.Commit(); err != nil {
		m.abort()
		return m.adID, err
	}
	m.obs.Finished()
	metrics.EnumerationDuration.Observe(time.Since(start).Seconds())
	m.logger.Info().Dur("took", time.Since(start)).Msg("enumeration finished")
	return m.adID, nil
}

func (m *Manager) run(ctx context.Context) error {
	if m.cfg.ResumeADID != 0 {
		if err := m.resume(m.cfg.ResumeADID); err != nil {
			return err
		}
	} else if err := m.runPhase1(ctx); err != nil {
		return err
	}

	spiller, err := newSpiller(m.cfg.SpillDir)
	if err != nil {
		return err
	}
	defer spiller.discard()

	if err := m.runSDPhase(ctx, spiller); err != nil {
		return err
	}
	if err := m.runMembershipPhase(ctx, spiller); err != nil {
		return err
	}
	return m.bulkLoad(spiller)
}

// resume loads an existing run so Phase 2 can fill what is missing
func (m *Manager) resume(adID int64) error {
	info, err := m.store.GetDomainInfo(adID)
	if err != nil {
		return fmt.Errorf("cannot resume run %d: %w", adID, err)
	}
	m.adID = info.ID
	m.domainSID = info.SID
	m.domainName = info.Name
	m.logger = m.runLogger()
	m.finished = []string{"adinfo", "trusts", "users", "machines", "groups", "ous", "gpos", "spns"}
	m.obs.Started(m.adID, m.domainName)
	m.logger.Info().Msg("resuming run")
	return nil
}

// runPhase1 walks the breadth categories. adinfo runs alone first; after
// that up to Workers categories run in parallel, a new one starting
// whenever one drains.
func (m *Manager) runPhase1(ctx context.Context) error {
	if err := m.runCategory(ctx, worker.CmdDomainInfo); err != nil {
		return err
	}
	if m.adID == 0 {
		return fmt.Errorf("domain info enumeration yielded no result")
	}

	pending := phase1Order[1:]
	for len(pending) > 0 || len(m.running) > 0 {
		for len(pending) > 0 && len(m.running) < m.cfg.Workers {
			cmd := pending[0]
			pending = pending[1:]
			m.running[cmd] = true
			select {
			case m.in <- worker.Job{Command: cmd}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		msg, err := m.receive(ctx)
		if err != nil {
			return err
		}
		if err := m.route(msg); err != nil {
			return err
		}
	}
	return m.store.Commit()
}

// runCategory runs a single breadth category to completion while nothing
// else is scheduled
func (m *Manager) runCategory(ctx context.Context, cmd worker.Command) error {
	m.running[cmd] = true
	select {
	case m.in <- worker.Job{Command: cmd}:
	case <-ctx.Done():
		return ctx.Err()
	}
	for m.running[cmd] {
		msg, err := m.receive(ctx)
		if err != nil {
			return err
		}
		if err := m.route(msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) receive(ctx context.Context) (worker.Message, error) {
	select {
	case msg := <-m.out:
		return msg, nil
	case <-m.poolDone:
		return worker.Message{}, fmt.Errorf("worker pool exited")
	case <-ctx.Done():
		return worker.Message{}, ctx.Err()
	}
}

func (m *Manager) snapshot() progress.Snapshot {
	running := make([]string, 0, len(m.running))
	for cmd := range m.running {
		running = append(running, categoryNames[cmd])
	}
	return progress.Snapshot{Finished: m.finished, Running: running}
}

func (m *Manager) item(category string) {
	metrics.ObjectsStored.WithLabelValues(category).Inc()
	m.obs.Item(m.snapshot())
}

func (m *Manager) categoryDone(cmd worker.Command) {
	delete(m.running, cmd)
	m.finished = append(m.finished, categoryNames[cmd])
	metrics.CategoriesFinished.Inc()
	m.logger.Debug().Str("category", categoryNames[cmd]).Msg("category finished")
}

// route applies one Phase-1 message to the store
func (m *Manager) route(msg worker.Message) error {
	switch msg.Kind {
	case worker.MsgDomainInfo:
		return m.storeDomainInfo(msg.DomainInfo)
	case worker.MsgTrust:
		msg.Trust.ADID = m.adID
		if err := m.store.InsertTrust(msg.Trust); err != nil {
			return err
		}
		m.item("trusts")
	case worker.MsgUser:
		if err := m.storeUser(msg.User); err != nil {
			return err
		}
		m.item("users")
	case worker.MsgMachine:
		if err := m.storeMachine(msg.Machine); err != nil {
			return err
		}
		m.item("machines")
	case worker.MsgGroup:
		msg.Group.ADID = m.adID
		if err := m.store.InsertGroup(msg.Group); err != nil {
			return err
		}
		m.item("groups")
	case worker.MsgOU:
		if err := m.storeOU(msg.OU); err != nil {
			return err
		}
		m.item("ous")
	case worker.MsgGPO:
		msg.GPO.ADID = m.adID
		if err := m.store.InsertGPO(msg.GPO); err != nil {
			return err
		}
		m.item("gpos")
	case worker.MsgSPNService:
		msg.SPNService.ADID = m.adID
		if err := m.store.InsertSPNService(msg.SPNService); err != nil {
			return err
		}
		m.item("spns")
	case worker.MsgException:
		m.logger.Warn().Str("trace", msg.Exception).Int("worker_id", msg.Worker).Msg("worker exception")
	case worker.MsgDomainInfoFinished:
		m.categoryDone(worker.CmdDomainInfo)
	case worker.MsgTrustsFinished:
		m.categoryDone(worker.CmdTrusts)
	case worker.MsgUsersFinished:
		m.categoryDone(worker.CmdUsers)
	case worker.MsgMachinesFinished:
		m.categoryDone(worker.CmdMachines)
	case worker.MsgGroupsFinished:
		m.categoryDone(worker.CmdGroups)
	case worker.MsgOUsFinished:
		m.categoryDone(worker.CmdOUs)
	case worker.MsgGPOsFinished:
		m.categoryDone(worker.CmdGPOs)
	case worker.MsgSPNServicesFinished:
		m.categoryDone(worker.CmdSPNServices)
	default:
		m.logger.Warn().Str("kind", string(msg.Kind)).Msg("unexpected message in breadth phase")
	}
	return nil
}

// storeDomainInfo persists the run's root record. The ad_id it assigns is
// committed immediately so every later record can reference it.
func (m *Manager) storeDomainInfo(info *types.DomainInfo) error {
	info.Name = types.DomainNameFromDN(info.DistinguishedName)
	info.EnumState = types.EnumStateStarted
	if err := m.store.InsertDomainInfo(info); err != nil {
		return err
	}
	if err := m.store.Commit(); err != nil {
		return err
	}
	m.adID = info.ID
	m.domainSID = info.SID
	m.domainName = info.Name
	m.logger = m.runLogger()
	m.obs.Started(m.adID, m.domainName)
	m.logger.Info().Msg("run registered")
	m.item("adinfo")
	return nil
}

// runLogger rebinds the manager logger once the run is registered, so
// every later line carries the run's ad_id and domain
func (m *Manager) runLogger() zerolog.Logger {
	return log.WithADID(m.adID).With().
		Str("component", "manager").
		Str("domain", m.domainName).
		Logger()
}

// storeUser stores the user and its SPN rows in the same unit of work
func (m *Manager) storeUser(res *worker.UserResult) error {
	res.User.ADID = m.adID
	if err := m.store.InsertUser(res.User); err != nil {
		return err
	}
	for _, spn := range res.SPNs {
		spn.ADID = m.adID
		if err := m.store.InsertSPN(spn); err != nil {
			return err
		}
	}
	return nil
}

// storeMachine stores the machine, then its delegations keyed by the
// machine's SID
func (m *Manager) storeMachine(res *worker.MachineResult) error {
	res.Machine.ADID = m.adID
	if err := m.store.InsertMachine(res.Machine); err != nil {
		return err
	}
	for _, del := range res.Delegations {
		del.MachineSID = res.Machine.SID
		if err := m.store.InsertDelegation(del); err != nil {
			return err
		}
	}
	return nil
}

// storeOU stores the OU and the GPLink rows parsed from its gPLink value
func (m *Manager) storeOU(ou *types.OU) error {
	ou.ADID = m.adID
	if err := m.store.InsertOU(ou); err != nil {
		return err
	}
	for _, link := range types.ParseGPLinks(ou.GPLinkRaw) {
		link.ADID = m.adID
		link.OUGUID = ou.GUID
		if err := m.store.InsertGPLink(&link); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) abort() {
	if m.adID != 0 {
		if err := m.store.UpdateEnumState(m.adID, types.EnumStateAborted); err != nil {
			m.logger.Warn().Err(err).Msg("failed to mark run aborted")
		}
		if err := m.store.Commit(); err != nil {
			m.logger.Warn().Err(err).Msg("failed to commit aborted run")
		}
	}
	m.obs.Aborted()
}

// stopWorkers closes the job channel and drains residual output until the
// pool exits, so no worker stays blocked on a send
func (m *Manager) stopWorkers() {
	close(m.in)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-m.out:
		case <-done:
			return
		}
	}
}

// Stats reports per-table row counts for the run just executed
func (m *Manager) Stats() (*storage.Counts, error) {
	if m.adID == 0 {
		return nil, fmt.Errorf("no run executed")
	}
	return m.store.CountObjects(m.adID)
}

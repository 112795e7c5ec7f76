package manager

import (
	"context"
	"fmt"
	"os"

	"github.com/corvid-labs/grackle/pkg/metrics"
	"github.com/corvid-labs/grackle/pkg/spill"
	"github.com/corvid-labs/grackle/pkg/storage"
	"github.com/corvid-labs/grackle/pkg/types"
	"github.com/corvid-labs/grackle/pkg/worker"
)

// spiller owns the run's two spill files. A write failure poisons the
// affected spill only: its later records are dropped and its bulk load is
// skipped, while the other spill and the rest of the run continue. A
// resumed run fetches the lost category again.
type spiller struct {
	sd    *spill.Writer
	token *spill.Writer

	sdErr    error
	tokenErr error
}

func newSpiller(dir string) (*spiller, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	sd, err := spill.NewWriter(dir, spill.KindSD)
	if err != nil {
		return nil, err
	}
	token, err := spill.NewWriter(dir, spill.KindToken)
	if err != nil {
		sd.Close()
		os.Remove(sd.Path())
		return nil, err
	}
	return &spiller{sd: sd, token: token}, nil
}

// discard closes both writers and removes whatever files are still on
// disk; after a successful bulk load there is nothing left to remove
func (s *spiller) discard() {
	for _, w := range []*spill.Writer{s.sd, s.token} {
		w.Close()
		os.Remove(w.Path())
	}
}

// stageSD appends one security descriptor to the sd spill. The first
// write failure poisons the spill; the failure is logged once and later
// records are dropped.
func (m *Manager) stageSD(sp *spiller, rec *types.SDBinding) {
	if sp.sdErr != nil {
		return
	}
	rec.ADID = m.adID
	if err := sp.sd.Write(rec); err != nil {
		sp.sdErr = err
		m.logger.Warn().Err(err).Msg("sd spill write failed; dropping the remaining security descriptors")
		return
	}
	metrics.SpillRecords.WithLabelValues(string(spill.KindSD)).Inc()
}

// stageToken appends one membership row to the token spill, with the same
// poisoning discipline as stageSD
func (m *Manager) stageToken(sp *spiller, rec *types.TokenGroup) {
	if sp.tokenErr != nil {
		return
	}
	rec.ADID = m.adID
	if err := sp.token.Write(rec); err != nil {
		sp.tokenErr = err
		m.logger.Warn().Err(err).Msg("token spill write failed; dropping the remaining memberships")
		return
	}
	metrics.SpillRecords.WithLabelValues(string(spill.KindToken)).Inc()
}

type genResult struct {
	jobs int
	err  error
}

// runSDPhase fans out one SDS job per object missing a security
// descriptor. Job generation runs in its own goroutine so the scan never
// stalls the routing loop. Every targeted job yields exactly one message
// (SD or EXCEPTION); the phase closes when each one is accounted and every
// worker has acknowledged the drain with SDS_FINISHED.
func (m *Manager) runSDPhase(ctx context.Context, sp *spiller) error {
	total, err := m.store.CountPendingSDTargets(m.adID)
	if err != nil {
		return err
	}
	m.logger.Info().Int64("pending", total).Msg("collecting security descriptors")
	m.running[worker.CmdSDs] = true

	ctx, cancel := context.WithCancel(ctx)
	gen := make(chan genResult, 1)
	genDone := make(chan struct{})
	// the generator sends on the shared job channel; it must have exited
	// before anyone may close that channel
	defer func() {
		cancel()
		<-genDone
	}()
	go func() {
		defer close(genDone)
		jobs := 0
		for target, err := range m.store.PendingSDTargets(m.adID, storage.TargetWindow) {
			if err != nil {
				gen <- genResult{jobs: jobs, err: err}
				return
			}
			select {
			case m.in <- worker.Job{Command: worker.CmdSDs, Target: target}:
				jobs++
			case <-ctx.Done():
				gen <- genResult{jobs: jobs, err: ctx.Err()}
				return
			}
		}
		// nil-target jobs ask each worker to confirm the stream drained
		for i := 0; i < m.cfg.Workers; i++ {
			select {
			case m.in <- worker.Job{Command: worker.CmdSDs}:
			case <-ctx.Done():
				gen <- genResult{jobs: jobs, err: ctx.Err()}
				return
			}
		}
		gen <- genResult{jobs: jobs}
	}()

	acks, received, expected := 0, 0, -1
	for expected < 0 || received < expected || acks < m.cfg.Workers {
		select {
		case res := <-gen:
			if res.err != nil {
				return res.err
			}
			expected = res.jobs
			gen = nil
		case msg := <-m.out:
			switch msg.Kind {
			case worker.MsgSD:
				m.stageSD(sp, msg.SD)
				m.item("sds")
				received++
			case worker.MsgException:
				m.logger.Warn().Str("trace", msg.Exception).Int("worker_id", msg.Worker).Msg("worker exception")
				received++
			case worker.MsgSDsFinished:
				acks++
			}
		case <-m.poolDone:
			return fmt.Errorf("worker pool exited during sd collection")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.categoryDone(worker.CmdSDs)
	return nil
}

// runMembershipPhase fans out one MEMBERSHIPS job per object missing
// token-group rows. Every job terminates with MEMBERSHIP_FINISHED, failed
// ones included, so the phase ends when the terminator count matches the
// job count.
func (m *Manager) runMembershipPhase(ctx context.Context, sp *spiller) error {
	total, err := m.store.CountPendingMembershipTargets(m.adID)
	if err != nil {
		return err
	}
	m.logger.Info().Int64("pending", total).Msg("collecting memberships")
	m.running[worker.CmdMemberships] = true

	ctx, cancel := context.WithCancel(ctx)
	gen := make(chan genResult, 1)
	genDone := make(chan struct{})
	defer func() {
		cancel()
		<-genDone
	}()
	go func() {
		defer close(genDone)
		jobs := 0
		for target, err := range m.store.PendingMembershipTargets(m.adID, storage.TargetWindow) {
			if err != nil {
				gen <- genResult{jobs: jobs, err: err}
				return
			}
			select {
			case m.in <- worker.Job{Command: worker.CmdMemberships, Target: target}:
				jobs++
			case <-ctx.Done():
				gen <- genResult{jobs: jobs, err: ctx.Err()}
				return
			}
		}
		gen <- genResult{jobs: jobs}
	}()

	finished := 0
	expected := -1
	for expected < 0 || finished < expected {
		select {
		case res := <-gen:
			if res.err != nil {
				return res.err
			}
			expected = res.jobs
			gen = nil
		case msg := <-m.out:
			switch msg.Kind {
			case worker.MsgMembership:
				m.stageToken(sp, msg.Membership)
				m.item("memberships")
			case worker.MsgException:
				m.logger.Warn().Str("trace", msg.Exception).Int("worker_id", msg.Worker).Msg("worker exception")
			case worker.MsgMembershipFinished:
				finished++
			}
		case <-m.poolDone:
			return fmt.Errorf("worker pool exited during membership collection")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.categoryDone(worker.CmdMemberships)
	return nil
}

// bulkLoad replays both spill files into the store, committing every
// bulkCommitEvery rows and deleting each file once loaded. A spill that
// failed during collection, or cannot be read back, is logged and skipped;
// the other one still loads.
func (m *Manager) bulkLoad(sp *spiller) error {
	if err := sp.sd.Close(); err != nil && sp.sdErr == nil {
		sp.sdErr = err
	}
	if err := sp.token.Close(); err != nil && sp.tokenErr == nil {
		sp.tokenErr = err
	}

	if sp.sdErr != nil {
		m.logger.Warn().Err(sp.sdErr).Str("kind", string(spill.KindSD)).Msg("spill unusable; skipping bulk load")
	} else if err := loadSpill(m, sp.sd.Path(), spill.KindSD, func(rec *types.SDBinding) error {
		rec.ADID = m.adID
		return m.store.InsertSDBinding(rec)
	}); err != nil {
		return err
	}

	if sp.tokenErr != nil {
		m.logger.Warn().Err(sp.tokenErr).Str("kind", string(spill.KindToken)).Msg("spill unusable; skipping bulk load")
		return nil
	}
	return loadSpill(m, sp.token.Path(), spill.KindToken, func(rec *types.TokenGroup) error {
		rec.ADID = m.adID
		return m.store.InsertTokenGroup(rec)
	})
}

func loadSpill[T any](m *Manager, path string, kind spill.Kind, insert func(*T) error) error {
	r, err := spill.OpenReader(path)
	if err != nil {
		m.logger.Warn().Err(err).Str("kind", string(kind)).Msg("spill unreadable; skipping bulk load")
		return nil
	}
	defer r.Close()

	rows := 0
	for {
		var rec T
		ok, err := r.Next(&rec)
		if err != nil {
			m.logger.Warn().Err(err).Str("kind", string(kind)).Int("rows", rows).Msg("spill truncated; keeping the rows read so far")
			break
		}
		if !ok {
			break
		}
		if err := insert(&rec); err != nil {
			return err
		}
		rows++
		if rows%bulkCommitEvery == 0 {
			if err := m.store.Commit(); err != nil {
				return err
			}
		}
	}
	if err := m.store.Commit(); err != nil {
		return err
	}
	metrics.BulkLoadedRows.WithLabelValues(string(kind)).Add(float64(rows))
	m.logger.Info().Int("rows", rows).Str("kind", string(kind)).Msg("spill loaded")
	return os.Remove(path)
}

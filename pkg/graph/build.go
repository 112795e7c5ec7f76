package graph

import (
	"errors"
	"fmt"

	"github.com/corvid-labs/grackle/pkg/log"
	"github.com/corvid-labs/grackle/pkg/storage"
	"github.com/corvid-labs/grackle/pkg/types"
)

// MemberOfLabel marks edges derived from effective group membership
const MemberOfLabel = "MemberOf"

// Build registers a new graph over the run adID and materializes its
// membership edges: one MemberOf edge per token-group row, subject to
// group. Returns the new graph id.
func Build(store *storage.Store, adID int64) (int64, error) {
	if _, err := store.GetDomainInfo(adID); err != nil {
		return 0, fmt.Errorf("cannot build graph for run %d: %w", adID, err)
	}

	gi := &types.GraphInfo{ADID: adID}
	if err := store.InsertGraphInfo(gi); err != nil {
		return 0, err
	}

	ids := make(map[string]int64)
	resolve := func(sid, otype string) (int64, error) {
		if id, ok := ids[sid]; ok {
			return id, nil
		}
		id, err := store.LookupIDByOID(adID, sid)
		if errors.Is(err, storage.ErrNotFound) {
			l := &types.EdgeLookup{ADID: adID, OID: sid, OType: otype}
			if err := store.InsertEdgeLookup(l); err != nil {
				return 0, err
			}
			id = l.ID
		} else if err != nil {
			return 0, err
		}
		ids[sid] = id
		return id, nil
	}

	edges := 0
	for tg, err := range store.TokenGroupRows(adID, storage.EdgeWindow) {
		if err != nil {
			return 0, err
		}
		if tg.SID == "" || tg.MemberSID == "" || tg.SID == tg.MemberSID {
			continue
		}
		src, err := resolve(tg.SID, string(tg.ObjectType))
		if err != nil {
			return 0, err
		}
		// membership targets are groups unless we learn otherwise
		dst, err := resolve(tg.MemberSID, "group")
		if err != nil {
			return 0, err
		}
		if err := store.InsertEdge(&types.Edge{
			GraphID: gi.ID, ADID: adID,
			Src: src, Dst: dst, Label: MemberOfLabel,
		}); err != nil {
			return 0, err
		}
		edges++
	}
	if err := store.Commit(); err != nil {
		return 0, err
	}
	logger := log.WithGraphID(gi.ID)
	logger.Info().Int("edges", edges).Int64("ad_id", adID).Msg("graph built")
	return gi.ID, nil
}

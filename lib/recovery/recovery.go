package recovery

import (
	"fmt"
	"path/filepath"

	"github.com/ValentinKolb/roc/lib/db"
	"github.com/ValentinKolb/roc/lib/wal"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("recovery")

var replayedRecords = metrics.GetOrCreateCounter("roc_recovery_replayed_records")

// Layout names the files recovery and the engine work on.
type Layout struct {
	Dir string
}

func (l Layout) SnapshotPath() string   { return filepath.Join(l.Dir, db.SnapshotFileName) }
func (l Layout) WALPath() string        { return filepath.Join(l.Dir, wal.FileName) }
func (l Layout) CheckpointPath() string { return filepath.Join(l.Dir, wal.CheckpointFileName) }

// Result describes what recovery did.
type Result struct {
	SnapshotLoaded bool
	SnapshotIdx    uint64
	Flag           wal.Flag
	FlagPresent    bool
	Replayed       int
	Skipped        int
	TornTail       bool
	CutAt          int64 // size the log was cut to, only set if TornTail
}

// Run restores the database from the files in the layout:
//
//  1. load the snapshot, if one exists
//  2. read the checkpoint flag
//  3. if the flag is DIRTY, replay every log record whose index is above the snapshot index
//  4. if replay stopped at a torn or corrupt record, cut the log behind the last good one
//
// Run must complete before the engine starts serving.
func Run(database db.KVDB, layout Layout) (Result, error) {
	var res Result

	loaded, err := db.LoadSnapshot(database, layout.SnapshotPath())
	if err != nil {
		return res, err
	}
	res.SnapshotLoaded = loaded
	res.SnapshotIdx = database.WriteIdx()
	if loaded {
		log.Infof("loaded snapshot %s at index %d", layout.SnapshotPath(), res.SnapshotIdx)
	}

	flag, present, err := wal.ReadCheckpoint(layout.CheckpointPath())
	if err != nil {
		return res, err
	}
	res.Flag = flag
	res.FlagPresent = present

	if !present || flag == wal.FlagClean {
		log.Infof("checkpoint is %s (present=%t), skipping log replay", flag, present)
		return res, nil
	}

	reader := wal.NewReader(layout.WALPath())
	for rec := range reader.All() {
		if rec.Index <= res.SnapshotIdx {
			res.Skipped++
			continue
		}
		if err := db.Apply(database, rec); err != nil {
			return res, fmt.Errorf("replay record %d: %w", rec.Index, err)
		}
		res.Replayed++
	}
	if err := reader.Err(); err != nil {
		return res, err
	}
	res.TornTail = reader.Torn()

	// new records are appended to this file, they must not land behind the garbage
	if res.TornTail {
		if err := wal.CutTail(layout.WALPath(), reader.ValidSize()); err != nil {
			return res, err
		}
		res.CutAt = reader.ValidSize()
	}

	replayedRecords.Add(res.Replayed)
	log.Infof("replayed %d records from %s (%d already in snapshot, torn tail: %t)",
		res.Replayed, layout.WALPath(), res.Skipped, res.TornTail)
	return res, nil
}

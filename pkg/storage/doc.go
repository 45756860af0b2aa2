/*
Package storage provides BoltDB-backed persistence for kannich run
history.

BoltStore keeps a single bucket, runs, keyed by a timestamp-ordered ID
so the most recent records fall out of a reverse bucket scan with no
secondary index:

	┌──────────────── BOLTDB STORAGE ────────────────┐
	│  BoltStore                                      │
	│  - File: <dataDir>/kannich.db                   │
	│  - Bucket: runs (RunRecord ID -> JSON blob)     │
	│  - Reads: db.View()   Writes: db.Update()       │
	└──────────────────────────────────────────────────┘

# Usage

	store, err := storage.NewBoltStore("/var/lib/kannich")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	record := &types.RunRecord{
		PipelineFile:  "kannich.yaml",
		ExecutionName: "ci",
		StartedAt:     started,
		FinishedAt:    finished,
		Success:       result.Success,
		Jobs:          result.Jobs,
	}
	if err := store.SaveRun(record); err != nil {
		log.Fatal(err)
	}

	recent, err := store.ListRuns(10)

# Design notes

SaveRun assigns the ID (StartedAt nanoseconds + a random suffix) rather
than accepting a caller-supplied one, so two runs started in the same
process can never collide even with clock resolution coarser than the
run rate. ListRuns walks the bucket's cursor from Last backwards
instead of loading every record and sorting in memory, since the key
ordering already encodes time.
*/
package storage

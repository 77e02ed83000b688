package model

import "time"

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// RuleGenome is a stored CA rule. Bits holds the lookup table as '0'/'1'
// characters, entry 0 first.
type RuleGenome struct {
	VersionedRecord
	ID     string `json:"id"`
	Radius int    `json:"radius"`
	Bits   string `json:"bits"`
	Label  string `json:"label"`
}

type Population struct {
	VersionedRecord
	ID         string   `json:"id"`
	GenomeIDs  []string `json:"genome_ids"`
	Generation int      `json:"generation"`
	Radius     int      `json:"radius"`
}

type ScapeSummary struct {
	VersionedRecord
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BestFitness float64 `json:"best_fitness"`
	BestRule    string  `json:"best_rule,omitempty"`
	BestRunID   string  `json:"best_run_id,omitempty"`
}

type GenerationDiagnostics struct {
	Generation           int     `json:"generation"`
	BestGenomeID         string  `json:"best_genome_id"`
	BestRule             string  `json:"best_rule"`
	BestFitness          float64 `json:"best_fitness"`
	MeanFitness          float64 `json:"mean_fitness"`
	MinFitness           float64 `json:"min_fitness"`
	FingerprintDiversity int     `json:"fingerprint_diversity"`
	Evaluations          int     `json:"evaluations"`
	DurationMillis       float64 `json:"duration_ms"`
}

type TopGenomeRecord struct {
	Rank    int        `json:"rank"`
	Fitness float64    `json:"fitness"`
	Genome  RuleGenome `json:"genome"`
}

type LineageRecord struct {
	VersionedRecord
	GenomeID   string   `json:"genome_id"`
	ParentIDs  []string `json:"parent_ids,omitempty"`
	Generation int      `json:"generation"`
	Operation  string   `json:"operation"`
}

// RunRecord summarizes one completed optimizer run.
type RunRecord struct {
	VersionedRecord
	ID             string    `json:"id"`
	Scape          string    `json:"scape"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Seed           int64     `json:"seed"`
	Radius         int       `json:"radius"`
	PopulationSize int       `json:"population_size"`
	Generations    int       `json:"generations"`
	Evaluations    int       `json:"evaluations"`
	BestGenomeID   string    `json:"best_genome_id"`
	BestRule       string    `json:"best_rule"`
	BestFitness    float64   `json:"best_fitness"`
}

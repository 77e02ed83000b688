package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"caevo/internal/model"
)

func TestDecodeGenomeFixture(t *testing.T) {
	genome, err := DecodeGenome(readFixture(t, "rule_genome_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if genome.ID != "g0-i0" || genome.Bits != "01111000" || genome.Label != "30" {
		t.Fatalf("unexpected genome: %+v", genome)
	}
}

func TestDecodePopulationFixture(t *testing.T) {
	population, err := DecodePopulation(readFixture(t, "population_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if len(population.GenomeIDs) != 2 || population.GenomeIDs[1] != "g0-i1" {
		t.Fatalf("unexpected population genome ids: %+v", population.GenomeIDs)
	}
}

func TestScapeSummaryFixtureRoundTrip(t *testing.T) {
	expected, err := DecodeScapeSummary(readFixture(t, "scape_summary_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	encoded, err := EncodeScapeSummary(expected)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	actual, err := DecodeScapeSummary(encoded)
	if err != nil {
		t.Fatalf("decode roundtrip: %v", err)
	}
	if !reflect.DeepEqual(actual, expected) {
		t.Fatalf("roundtrip mismatch\nactual=%+v\nexpected=%+v", actual, expected)
	}
}

func TestRunCodecPreservesTimestamps(t *testing.T) {
	started := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	input := model.RunRecord{
		VersionedRecord: model.CurrentVersion(),
		ID:              "run-1",
		StartedAt:       started,
		FinishedAt:      started.Add(time.Second),
	}
	encoded, err := EncodeRun(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRun(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.StartedAt.Equal(started) || !decoded.FinishedAt.Equal(input.FinishedAt) {
		t.Fatalf("timestamps changed: %+v", decoded)
	}
}

func TestDecodeVersionMismatch(t *testing.T) {
	genome, err := DecodeGenome(readFixture(t, "rule_genome_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	genome.CodecVersion++
	encodedGenome, err := EncodeGenome(genome)
	if err != nil {
		t.Fatalf("encode genome: %v", err)
	}
	if _, err := DecodeGenome(encodedGenome); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for genome, got: %v", err)
	}

	run := model.RunRecord{VersionedRecord: model.VersionedRecord{SchemaVersion: model.CurrentSchemaVersion + 1, CodecVersion: model.CurrentCodecVersion}}
	encodedRun, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if _, err := DecodeRun(encodedRun); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for run, got: %v", err)
	}

	lineage := []model.LineageRecord{{GenomeID: "g1"}}
	encodedLineage, err := EncodeLineage(lineage)
	if err != nil {
		t.Fatalf("encode lineage: %v", err)
	}
	if _, err := DecodeLineage(encodedLineage); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for lineage, got: %v", err)
	}

	top := []model.TopGenomeRecord{{Rank: 1, Genome: model.RuleGenome{ID: "g1"}}}
	encodedTop, err := EncodeTopGenomes(top)
	if err != nil {
		t.Fatalf("encode top genomes: %v", err)
	}
	if _, err := DecodeTopGenomes(encodedTop); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for top genomes, got: %v", err)
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeFitnessHistory([]byte(`{"not":"a list"}`)); err == nil {
		t.Fatal("expected malformed history error")
	}
	if _, err := DecodeGenome([]byte(`[`)); err == nil {
		t.Fatal("expected malformed genome error")
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "fixtures", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

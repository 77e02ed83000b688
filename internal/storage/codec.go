package storage

import (
	"encoding/json"
	"errors"

	"caevo/internal/model"
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeGenome(g model.RuleGenome) ([]byte, error) {
	return json.Marshal(g)
}

func DecodeGenome(data []byte) (model.RuleGenome, error) {
	return decodeVersioned(data, func(g model.RuleGenome) model.VersionedRecord { return g.VersionedRecord })
}

func EncodePopulation(p model.Population) ([]byte, error) {
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (model.Population, error) {
	return decodeVersioned(data, func(p model.Population) model.VersionedRecord { return p.VersionedRecord })
}

func EncodeScapeSummary(s model.ScapeSummary) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeScapeSummary(data []byte) (model.ScapeSummary, error) {
	return decodeVersioned(data, func(s model.ScapeSummary) model.VersionedRecord { return s.VersionedRecord })
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	return decodeVersioned(data, func(r model.RunRecord) model.VersionedRecord { return r.VersionedRecord })
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeTopGenomes(top []model.TopGenomeRecord) ([]byte, error) {
	return json.Marshal(top)
}

func DecodeTopGenomes(data []byte) ([]model.TopGenomeRecord, error) {
	var top []model.TopGenomeRecord
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}
	for _, item := range top {
		if err := checkVersion(item.Genome.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return top, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeGenerationDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeGenerationDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func decodeVersioned[T any](data []byte, version func(T) model.VersionedRecord) (T, error) {
	var zero, out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, err
	}
	if err := checkVersion(version(out)); err != nil {
		return zero, err
	}
	return out, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != model.CurrentSchemaVersion || v.CodecVersion != model.CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

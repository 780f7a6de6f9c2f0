package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

type runConfigHashPayload struct {
	SourceID          string   `json:"source_id"`
	SinkID            string   `json:"sink_id"`
	BatchSize         int      `json:"batch_size"`
	MaxRetries        int      `json:"max_retries"`
	MaxRunTimeSeconds int      `json:"max_run_time_seconds"`
	StartFrom         string   `json:"start_from,omitempty"`
	LogTypes          []string `json:"log_types,omitempty"`
	LogLevel          int      `json:"log_level,omitempty"`
}

// HashRunConfig produces a stable digest of the effective run configuration,
// recorded on each run status so identical reruns can be spotted in history.
func HashRunConfig(sourceID, sinkID string, batchSize, maxRetries, maxRunTimeSeconds int, startFrom string, logTypes []string, logLevel int) (string, error) {
	var canon []string
	if len(logTypes) > 0 {
		canon = append([]string(nil), logTypes...)
		sort.Strings(canon)
	}

	p := runConfigHashPayload{
		SourceID:          sourceID,
		SinkID:            sinkID,
		BatchSize:         batchSize,
		MaxRetries:        maxRetries,
		MaxRunTimeSeconds: maxRunTimeSeconds,
		StartFrom:         startFrom,
		LogTypes:          canon,
		LogLevel:          logLevel,
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

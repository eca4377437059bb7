// Package model - key helpers shared by the persisted records.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/ortelius/pdvd-enricher/util"
)

// RepositoryKey derives the document key of a repository from its remote identifier.
func RepositoryKey(remoteID int64) string {
	return strconv.FormatInt(remoteID, 10)
}

// FindingKey derives a stable document key from a finding dedup key.
func FindingKey(uniqueID string) string {
	sum := sha256.Sum256([]byte(uniqueID))
	return hex.EncodeToString(sum[:])[:32]
}

// ContainerKey derives a stable key for engagement and test containers.
func ContainerKey(parts ...string) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "-"
		}
		key += util.SanitizeKey(p)
	}
	return key
}

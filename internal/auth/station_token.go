package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Station tokens are bound to one machine and carry its id in clear text:
//
//	rtx_<machine_id>_<64 hex chars>
//
// The machine id lets the API scope the caller before the database lookup.
const (
	stationTokenPrefix = "rtx_"
	stationSecretBytes = 32
)

var (
	ErrInvalidMachineID = errors.New("machine id must be 1-64 characters of letters, digits, '.', '_' or '-'")

	machineIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)
	secretPattern    = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

type StationTokenGenerator struct{}

func NewStationTokenGenerator() *StationTokenGenerator {
	return &StationTokenGenerator{}
}

// GenerateStationToken returns a token for machineID and the hash to store for it.
func (g *StationTokenGenerator) GenerateStationToken(machineID string) (string, string, error) {
	if !machineIDPattern.MatchString(machineID) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidMachineID, machineID)
	}

	secret := make([]byte, stationSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}

	token := stationTokenPrefix + machineID + "_" + hex.EncodeToString(secret)
	return token, g.HashToken(token), nil
}

func (g *StationTokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ParseStationToken returns the machine id embedded in token.
func (g *StationTokenGenerator) ParseStationToken(token string) (machineID string, ok bool) {
	rest, found := strings.CutPrefix(token, stationTokenPrefix)
	if !found {
		return "", false
	}
	i := strings.LastIndexByte(rest, '_')
	if i < 0 {
		return "", false
	}
	machineID, secret := rest[:i], rest[i+1:]
	if !machineIDPattern.MatchString(machineID) || !secretPattern.MatchString(secret) {
		return "", false
	}
	return machineID, true
}

package mqtt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// objectIDPrefix starts every generated object ID.
const objectIDPrefix = "AirCtrlMqtt_"

// LoadOrCreateInstanceID reads the instance ID from a file in dataDir,
// or generates a new UUIDv7 and persists it if the file does not exist.
// The instance ID outlives restarts so the derived object ID, and with
// it the HA entity history, stays stable.
func LoadOrCreateInstanceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "instance_id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}

	idStr := id.String()
	if err := os.WriteFile(path, []byte(idStr+"\n"), 0644); err != nil {
		return "", fmt.Errorf("persist instance ID to %s: %w", path, err)
	}

	return idStr, nil
}

// ObjectIDFromInstance derives the HA object ID from an instance ID:
// "AirCtrlMqtt_" followed by the last 8 hex digits. The tail of a UUIDv7
// is random, unlike its timestamp head.
func ObjectIDFromInstance(instanceID string) string {
	hex := strings.ReplaceAll(instanceID, "-", "")
	if len(hex) > 8 {
		hex = hex[len(hex)-8:]
	}
	return objectIDPrefix + strings.ToLower(hex)
}

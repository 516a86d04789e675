package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Deployment is the record written after deploying the voting contract.
type Deployment struct {
	Contract  string    `json:"contract"`
	Address   string    `json:"address"`
	Network   string    `json:"network"`
	Timestamp time.Time `json:"timestamp"`
	ChainID   uint64    `json:"chainId"`
}

// ReadDeployment loads a deployment record.
func ReadDeployment(path string) (*Deployment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Deployment
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("failed to parse deployment record %s: %w", path, err)
	}
	return &d, nil
}

// WriteDeployment stores d as indented JSON at path.
func WriteDeployment(path string, d *Deployment) error {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0644)
}

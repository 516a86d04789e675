package chain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/BlockchainVoting.json
var defaultABI []byte

// DefaultABI returns the interface description bundled with the binary.
func DefaultABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(defaultABI))
}

// LoadABI reads an interface description from disk. Both a bare ABI array
// and a compiler artifact carrying an "abi" field are accepted. An empty
// path yields the bundled ABI.
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return DefaultABI()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read ABI file: %w", err)
	}
	return ParseABI(data)
}

// ParseABI decodes a bare ABI array or an artifact object.
func ParseABI(data []byte) (abi.ABI, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, fmt.Errorf("artifact has no abi field")
		}
		data = artifact.ABI
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}

package chain

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"votedesk.mini/vdk/internal/types"
)

// Positional output names of the candidates(i) mapping getter.
var candidateOutputs = []string{"id", "name", "party", "age", "qualification", "candidateaddress", "votecount"}

// Field aliases seen across contract revisions, checked in order.
var (
	candidateAddressKeys = []string{"candidateaddress", "address", "addr"}
	voteCountKeys        = []string{"vote", "votecount", "votes"}
	voterAddressKeys     = []string{"voteraddress", "address", "addr"}
)

// DecodeCandidates converts the outputs of the candidate list method into
// candidates. Fields are matched by name, so tuples from the ABI decoder and
// plain maps both work. A missing vote count decodes as zero.
func DecodeCandidates(out []any) ([]types.Candidate, error) {
	items, err := listOutput(out)
	if err != nil {
		return nil, err
	}
	candidates := make([]types.Candidate, 0, len(items))
	for _, item := range items {
		candidates = append(candidates, candidateFrom(fieldsOf(item, nil)))
	}
	return candidates, nil
}

// DecodeCandidateAt converts the flat outputs of the per-index candidate
// getter.
func DecodeCandidateAt(out []any) types.Candidate {
	return candidateFrom(fieldsOf(out, candidateOutputs))
}

// DecodeVoters converts the outputs of the voter list method.
func DecodeVoters(out []any) ([]types.Voter, error) {
	items, err := listOutput(out)
	if err != nil {
		return nil, err
	}
	voters := make([]types.Voter, 0, len(items))
	for _, item := range items {
		f := fieldsOf(item, nil)
		voters = append(voters, types.Voter{
			ID:      asUint64(f["id"]),
			Name:    asString(f["name"]),
			Age:     asUint64(f["age"]),
			Address: asString(first(f, voterAddressKeys)),
		})
	}
	return voters, nil
}

// DecodeCount reads a single unsigned integer output.
func DecodeCount(out []any) (uint64, error) {
	if len(out) == 0 {
		return 0, fmt.Errorf("empty result")
	}
	return asUint64(out[0]), nil
}

func candidateFrom(f map[string]any) types.Candidate {
	return types.Candidate{
		ID:            asUint64(f["id"]),
		Name:          asString(f["name"]),
		Party:         asString(f["party"]),
		Age:           asUint64(f["age"]),
		Qualification: asString(f["qualification"]),
		Address:       asString(first(f, candidateAddressKeys)),
		VoteCount:     asUint64(first(f, voteCountKeys)),
	}
}

func listOutput(out []any) ([]reflect.Value, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	v := reflect.ValueOf(out[0])
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list result, got %T", out[0])
	}
	items := make([]reflect.Value, v.Len())
	for i := range items {
		items[i] = v.Index(i)
	}
	return items, nil
}

// fieldsOf flattens a struct, map or positional sequence into a map keyed by
// normalised field name. names labels positional elements.
func fieldsOf(x any, names []string) map[string]any {
	v, ok := x.(reflect.Value)
	if !ok {
		v = reflect.ValueOf(x)
	}
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return map[string]any{}
		}
		v = v.Elem()
	}

	fields := make(map[string]any)
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				fields[normalise(t.Field(i).Name)] = v.Field(i).Interface()
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if iter.Key().Kind() == reflect.String {
				fields[normalise(iter.Key().String())] = iter.Value().Interface()
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len() && i < len(names); i++ {
			fields[names[i]] = v.Index(i).Interface()
		}
	}
	return fields
}

func normalise(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

func first(f map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			return v
		}
	}
	return nil
}

// asUint64 coerces a wire value to a count. Anything unrecognised is zero.
func asUint64(v any) uint64 {
	switch n := v.(type) {
	case nil:
		return 0
	case *big.Int:
		if n == nil || n.Sign() < 0 {
			return 0
		}
		if !n.IsUint64() {
			return math.MaxUint64
		}
		return n.Uint64()
	case big.Int:
		return asUint64(&n)
	case uint64:
		return n
	case uint32:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint:
		return uint64(n)
	case int64:
		return clampInt(n)
	case int32:
		return clampInt(int64(n))
	case int:
		return clampInt(int64(n))
	case float64:
		if n < 0 {
			return 0
		}
		return uint64(n)
	case string:
		u, err := strconv.ParseUint(strings.TrimSpace(n), 0, 64)
		if err != nil {
			return 0
		}
		return u
	}
	return 0
}

func clampInt(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case common.Address:
		if s == (common.Address{}) {
			return ""
		}
		return s.Hex()
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

// Package bucket computes the deterministic 0-99 bucket used for gradual
// rollout percentage gating (spec.md §4.6 step 4, GLOSSARY "Bucket").
package bucket

import (
	"crypto/md5" //nolint:gosec // not used for anything security sensitive, just deterministic sharding
	"math/big"
)

// Of returns bucket(identity) = MD5(identity).hex_as_uint128 % 100.
// Deterministic: depends only on the input string (normally a printer
// UUID), stable across process restarts and machines.
func Of(identity string) int {
	sum := md5.Sum([]byte(identity)) //nolint:gosec
	n := new(big.Int).SetBytes(sum[:])
	mod := new(big.Int).Mod(n, big.NewInt(100))
	return int(mod.Int64())
}

// Package jobs provides example job handlers for gearjob workers.
//
//   - Add: sums a JSON array of integers, e.g. [1,2,3] -> 6.
//   - Reverse: reverses a UTF-8 string, streaming it back in chunks.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/juliaogris/gearjob/pkg/job"
)

// Register registers all example jobs with r.
func Register(r *job.Registry) error {
	if err := r.Register("Add", NewAdd); err != nil {
		return err
	}
	return r.Register("Reverse", NewReverse)
}

// Add sums a JSON array of integers.
type Add struct {
	*job.Common
}

// NewAdd is the [job.Factory] for Add.
func NewAdd(conn job.Conn, handle string) any {
	return &Add{Common: job.NewCommon(conn, handle)}
}

// Run parses arg and returns the decimal sum. Progress is reported after
// each number.
func (a *Add) Run(ctx context.Context, arg []byte) ([]byte, error) {
	var nums []int64
	if err := json.Unmarshal(arg, &nums); err != nil {
		return nil, fmt.Errorf("cannot parse Add argument %q: %w", arg, err)
	}
	var sum int64
	total := uint64(len(nums))
	for i, n := range nums {
		sum += n
		if err := a.Status(ctx, uint64(i+1), total); err != nil { //nolint:gosec // i is non-negative
			return nil, err
		}
	}
	return []byte(strconv.FormatInt(sum, 10)), nil
}

// reverseChunkSize is the number of runes streamed per data update.
const reverseChunkSize = 64

// Reverse reverses a string.
type Reverse struct {
	*job.Common
}

// NewReverse is the [job.Factory] for Reverse.
func NewReverse(conn job.Conn, handle string) any {
	return &Reverse{Common: job.NewCommon(conn, handle)}
}

// Run returns arg reversed rune by rune. The reversed string is also
// streamed as data updates of up to reverseChunkSize runes.
func (r *Reverse) Run(ctx context.Context, arg []byte) ([]byte, error) {
	runes := []rune(string(arg))
	slices.Reverse(runes)
	for chunk := range slices.Chunk(runes, reverseChunkSize) {
		if err := r.Data(ctx, []byte(string(chunk))); err != nil {
			return nil, err
		}
	}
	return []byte(string(runes)), nil
}
